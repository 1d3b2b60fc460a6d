package power

import (
	"context"
	"fmt"

	"github.com/givepower/powersyncx/pkg/db/clickhouse"
)

// GetCursor returns the named cursor, or nil when it has never been written.
func (db *DB) GetCursor(ctx context.Context, name string) (*Cursor, error) {
	query := fmt.Sprintf(`
		SELECT name, value, version
		FROM "%s"."sync_cursor" FINAL
		WHERE name = ?
	`, db.Name)

	var c Cursor
	err := db.QueryRow(ctx, query, name).Scan(&c.Name, &c.Value, &c.Version)
	if err != nil {
		if clickhouse.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cursor %s: %w", name, err)
	}
	return &c, nil
}

// AdvanceCursor moves the named cursor forward, guarded by the version the
// caller read. Two writers racing on the same expectedVersion both land rows
// at version expectedVersion+1; the count check below surfaces that as
// ErrCursorConflict so the callers know a duplicate run happened instead of
// silently keeping one of the two values.
func (db *DB) AdvanceCursor(ctx context.Context, name string, value int64, expectedVersion uint64) error {
	next := expectedVersion + 1

	insert := fmt.Sprintf(`
		INSERT INTO "%s"."sync_cursor" (name, value, version)
		VALUES (?, ?, ?)
	`, db.Name)
	if err := db.Exec(ctx, insert, name, value, next); err != nil {
		return fmt.Errorf("advance cursor %s: %w", name, err)
	}

	// Counting without FINAL keeps duplicate versions visible before the
	// replacing merge collapses them.
	count := fmt.Sprintf(`
		SELECT count()
		FROM "%s"."sync_cursor"
		WHERE name = ? AND version = ?
	`, db.Name)

	var n uint64
	if err := db.QueryRow(ctx, count, name, next).Scan(&n); err != nil {
		return fmt.Errorf("verify cursor %s: %w", name, err)
	}
	if n > 1 {
		return fmt.Errorf("cursor %s version %d: %w", name, next, ErrCursorConflict)
	}
	return nil
}
