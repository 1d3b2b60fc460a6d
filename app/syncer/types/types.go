package types

// --- Workflow types

// WorkflowInstantSyncOutput summarizes one full instant-sync pass
// (delta sync, gap backfill, ranking refresh).
type WorkflowInstantSyncOutput struct {
	Pages       int     `json:"pages"`
	Records     int     `json:"records"`
	Backfilled  int     `json:"backfilled"`
	CursorAfter int64   `json:"cursorAfter"`
	DurationMs  float64 `json:"durationMs"`
}

// WorkflowRoundSyncOutput summarizes one round-sync sweep.
type WorkflowRoundSyncOutput struct {
	RoundsSynced int     `json:"roundsSynced"`
	DurationMs   float64 `json:"durationMs"`
}

// WorkflowSyncRoundInput drives the per-round child workflow.
type WorkflowSyncRoundInput struct {
	Round        uint64 `json:"round"`
	SnapshotTime int64  `json:"snapshotTime"` // unix seconds, end of the round window
}

// --- Activity types

// ActivitySyncBalancesOutput contains the result of a delta sync pass.
type ActivitySyncBalancesOutput struct {
	Pages        int     `json:"pages"`
	Records      int     `json:"records"`
	CursorBefore int64   `json:"cursorBefore"`
	CursorAfter  int64   `json:"cursorAfter"`
	DurationMs   float64 `json:"durationMs"`
}

// ActivityBackfillOutput contains the result of a gap backfill pass.
type ActivityBackfillOutput struct {
	Scanned    int     `json:"scanned"`    // Users with an allocation but no cached balance
	Filled     int     `json:"filled"`     // Entries the ledger returned a latest balance for
	DurationMs float64 `json:"durationMs"`
}

// ActivityListUnsyncedRoundsOutput lists closed round boundaries that still
// need their power computed, oldest round first.
type ActivityListUnsyncedRoundsOutput struct {
	Rounds []RoundRef `json:"rounds"`
}

// RoundRef identifies one unsynced round boundary.
type RoundRef struct {
	Round        uint64 `json:"round"`
	SnapshotTime int64  `json:"snapshotTime"`
}

// ActivitySyncRoundInput identifies the round to compute power for.
type ActivitySyncRoundInput struct {
	Round        uint64 `json:"round"`
	SnapshotTime int64  `json:"snapshotTime"`
}

// ActivitySyncRoundOutput contains the result of one round's power computation.
type ActivitySyncRoundOutput struct {
	Users      int     `json:"users"`      // Power records written
	Skipped    int     `json:"skipped"`    // Users whose record already existed
	DurationMs float64 `json:"durationMs"`
}
