package power

import "time"

// User mirrors the identity rows owned by the CRUD layer. The engine only
// reads them to map ledger wallet addresses onto user ids.
type User struct {
	ID            uint64 `ch:"user_id" json:"userId"`
	WalletAddress string `ch:"wallet_address" json:"walletAddress"`
}

// Allocation is a user's percentage split of their power onto one project.
// Written by the CRUD layer; the writer guarantees that for any user with at
// least one row the percentages sum to exactly 100. Read-only here.
type Allocation struct {
	UserID     uint64  `ch:"user_id" json:"userId"`
	ProjectID  uint64  `ch:"project_id" json:"projectId"`
	Percentage float64 `ch:"percentage" json:"percentage"`
}

// BalanceCacheEntry is the latest known balance for one user.
// SourceUpdatedAt is the ledger's update instant in unix seconds, never the
// local write time. Rows are created and updated exclusively by the balance
// syncer and never deleted.
type BalanceCacheEntry struct {
	UserID          uint64  `ch:"user_id" json:"userId"`
	Balance         float64 `ch:"balance" json:"balance"`
	SourceUpdatedAt int64   `ch:"source_updated_at" json:"sourceUpdatedAt"`
}

// Cursor is a named singleton record. Each name has exactly one logical row;
// Version increments on every advance so concurrent writers can be detected.
type Cursor struct {
	Name    string `ch:"name"`
	Value   int64  `ch:"value"`
	Version uint64 `ch:"version"`
}

// RoundSnapshot marks a closed round boundary at which historical power must
// be computed. Created by an external scheduler; the round syncer only flips
// Synced after every power record for the round is written.
type RoundSnapshot struct {
	Round        uint64 `ch:"round" json:"round"`
	BlockNumber  uint64 `ch:"block_number" json:"blockNumber"`
	SnapshotTime int64  `ch:"snapshot_time" json:"snapshotTime"`
	Synced       bool   `json:"synced"`
}

// RoundPowerRecord is one user's time-weighted average power over a closed
// round. Write-once per (round, user): rounds are never recomputed, and
// re-writing the same key during a retry is an idempotent no-op.
type RoundPowerRecord struct {
	UserID       uint64  `ch:"user_id" json:"userId"`
	Round        uint64  `ch:"round" json:"round"`
	AveragePower float64 `ch:"average_power" json:"averagePower"`
}

// ProjectRank is one row of the published ranking. Derived entirely from
// the balance cache and allocations; disposable and fully rebuilt on each
// materialization.
type ProjectRank struct {
	ProjectID  uint64  `ch:"project_id" json:"projectId"`
	TotalPower float64 `ch:"total_power" json:"totalPower"`
	Rank       uint64  `ch:"rank" json:"rank"`
}

// SyncRun is the audit record of one completed instant-sync run.
type SyncRun struct {
	RunID        string    `ch:"run_id" json:"runId"`
	StartedAt    time.Time `ch:"started_at" json:"startedAt"`
	FinishedAt   time.Time `ch:"finished_at" json:"finishedAt"`
	Pages        uint32    `ch:"pages" json:"pages"`
	Records      uint64    `ch:"records" json:"records"`
	CursorBefore int64     `ch:"cursor_before" json:"cursorBefore"`
	CursorAfter  int64     `ch:"cursor_after" json:"cursorAfter"`
	DurationMs   float64   `ch:"duration_ms" json:"durationMs"`
}
