package power

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/givepower/powersyncx/pkg/db/clickhouse"
)

// UpsertBalances writes a batch of balance cache entries. Upserts are
// commutative and idempotent per user: ReplacingMergeTree keeps the row with
// the greatest source_updated_at, so re-processing a page is harmless.
func (db *DB) UpsertBalances(ctx context.Context, entries []BalanceCacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	query := fmt.Sprintf(`INSERT INTO "%s"."balance_cache" (user_id, balance, source_updated_at) VALUES`, db.Name)
	batch, err := db.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	for _, e := range entries {
		if err := batch.Append(e.UserID, e.Balance, e.SourceUpdatedAt); err != nil {
			return err
		}
	}

	return batch.Send()
}

// GetBalance returns the latest cached balance for a user, or nil when the
// user has never been synced.
func (db *DB) GetBalance(ctx context.Context, userID uint64) (*BalanceCacheEntry, error) {
	query := fmt.Sprintf(`
		SELECT user_id, balance, source_updated_at
		FROM "%s"."balance_cache" FINAL
		WHERE user_id = ?
	`, db.Name)

	var e BalanceCacheEntry
	err := db.QueryRow(ctx, query, userID).Scan(&e.UserID, &e.Balance, &e.SourceUpdatedAt)
	if err != nil {
		if clickhouse.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get balance for user %d: %w", userID, err)
	}
	return &e, nil
}
