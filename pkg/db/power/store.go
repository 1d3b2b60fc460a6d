package power

import (
	"context"
	"errors"
)

// BalanceSyncCursorName is the singleton cursor tracking the last fully
// processed ledger update instant for the incremental balance sync.
const BalanceSyncCursorName = "balance_sync"

// ErrCursorConflict reports that another writer advanced the same cursor
// concurrently. The singleton-job guarantee should make this impossible;
// when it fires, something scheduled two sync runs at once.
var ErrCursorConflict = errors.New("sync cursor version conflict")

// Store exposes the database operations used by activities, workflows and
// the query API. Two implementations exist: the ClickHouse-backed DB and the
// in-memory MemStore used in tests.
type Store interface {
	Close() error
	DatabaseName() string
	Ping(ctx context.Context) error

	// Users and allocations are owned by the CRUD layer; the upserts exist
	// for that layer (and tests) to seed data, the engine only reads.
	UpsertUser(ctx context.Context, u *User) error
	UpsertAllocation(ctx context.Context, a *Allocation) error
	// UsersByWallets maps lowercase wallet addresses onto user ids,
	// restricted to users that have at least one allocation row.
	UsersByWallets(ctx context.Context, addresses []string) (map[string]uint64, error)
	// UsersWithAllocations pages through users holding a nonzero allocation.
	UsersWithAllocations(ctx context.Context, limit, offset int) ([]User, error)
	// UsersMissingBalance pages through users that have an allocation row
	// but no balance cache entry yet.
	UsersMissingBalance(ctx context.Context, limit, offset int) ([]User, error)

	// Balance cache, owned by the sync pipeline.
	UpsertBalances(ctx context.Context, entries []BalanceCacheEntry) error
	GetBalance(ctx context.Context, userID uint64) (*BalanceCacheEntry, error)

	// Sync cursor. GetCursor returns nil when the cursor has never been
	// written ("never synced"). AdvanceCursor performs a versioned write and
	// returns ErrCursorConflict when a concurrent advance is detected.
	GetCursor(ctx context.Context, name string) (*Cursor, error)
	AdvanceCursor(ctx context.Context, name string, value int64, expectedVersion uint64) error

	// Round snapshots and round power.
	InsertRoundSnapshot(ctx context.Context, snap RoundSnapshot) error
	ListRounds(ctx context.Context, limit int) ([]RoundSnapshot, error)
	ListUnsyncedSnapshots(ctx context.Context) ([]RoundSnapshot, error)
	MarkRoundSynced(ctx context.Context, round uint64) error
	UpsertRoundPower(ctx context.Context, records []RoundPowerRecord) error
	GetRoundPower(ctx context.Context, userID, round uint64) (*RoundPowerRecord, error)

	// Ranking materialization and reads.
	RefreshRanking(ctx context.Context) error
	GetRanking(ctx context.Context) ([]ProjectRank, error)
	GetProjectRank(ctx context.Context, projectID uint64) (*ProjectRank, error)

	// Sync audit trail.
	RecordSyncRun(ctx context.Context, run SyncRun) error
	ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error)
}
