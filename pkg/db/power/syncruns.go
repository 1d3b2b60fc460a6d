package power

import (
	"context"
	"fmt"
)

// RecordSyncRun appends one audit row per completed balance sync run.
func (db *DB) RecordSyncRun(ctx context.Context, run SyncRun) error {
	query := fmt.Sprintf(`
		INSERT INTO "%s"."sync_runs"
			(run_id, started_at, finished_at, pages, records, cursor_before, cursor_after, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, db.Name)
	err := db.Exec(ctx, query,
		run.RunID, run.StartedAt, run.FinishedAt,
		run.Pages, run.Records,
		run.CursorBefore, run.CursorAfter, run.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("record sync run %s: %w", run.RunID, err)
	}
	return nil
}

// ListSyncRuns returns the most recent sync runs, newest first.
func (db *DB) ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	query := fmt.Sprintf(`
		SELECT run_id, started_at, finished_at, pages, records, cursor_before, cursor_after, duration_ms
		FROM "%s"."sync_runs"
		ORDER BY started_at DESC
		LIMIT ?
	`, db.Name)

	rows, err := db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	defer rows.Close()

	var out []SyncRun
	for rows.Next() {
		var r SyncRun
		if err := rows.Scan(
			&r.RunID, &r.StartedAt, &r.FinishedAt,
			&r.Pages, &r.Records,
			&r.CursorBefore, &r.CursorAfter, &r.DurationMs,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
