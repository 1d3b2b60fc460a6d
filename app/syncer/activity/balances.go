package activity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/givepower/powersyncx/app/syncer/types"
	"github.com/givepower/powersyncx/pkg/db/power"
	"github.com/givepower/powersyncx/pkg/ledger"
	"github.com/givepower/powersyncx/pkg/retry"
)

// SyncBalances pulls incremental balance deltas from the ledger since the
// sync cursor and upserts them into the balance cache.
//
// The ledger pages by updatedAfter and can return several records sharing one
// timestamp, so a full page that would not move the cursor forward is a tie
// at the pagination boundary: the loop walks past it with a page offset
// instead of advancing the cursor, bounded by tieWalkCeiling. When the cursor
// does advance it lands one second before the page maximum, so records landing
// exactly at the boundary are re-fetched (and idempotently re-upserted) rather
// than silently skipped. The cursor is persisted once, after the loop ends.
func (c *Context) SyncBalances(ctx context.Context) (*types.ActivitySyncBalancesOutput, error) {
	start := time.Now()

	pageSize := c.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	cur, err := c.Store.GetCursor(ctx, power.BalanceSyncCursorName)
	if err != nil {
		return nil, fmt.Errorf("read sync cursor: %w", err)
	}
	var cursor int64
	var version uint64
	if cur != nil {
		cursor = cur.Value
		version = cur.Version
	}
	cursorBefore := cursor

	led := c.Ledger()
	pageOffset := 0
	tieWalks := 0
	pages := 0
	records := 0

	for {
		var page []ledger.BalanceRecord
		err := retry.WithBackoff(ctx, c.ledgerRetry(), c.Logger, "balances updated-after", func() error {
			var callErr error
			page, _, callErr = led.BalancesUpdatedAfter(ctx, cursor, pageSize, pageOffset)
			return callErr
		})
		if err != nil {
			// The cursor has not advanced past anything unprocessed, so the
			// next scheduled run resumes here without data loss.
			return nil, fmt.Errorf("fetch balance page (cursor=%d offset=%d): %w", cursor, pageOffset, err)
		}

		if len(page) == 0 {
			break
		}
		pages++

		upserted, maxUpdated, err := c.upsertPage(ctx, page)
		if err != nil {
			return nil, err
		}
		records += upserted

		if len(page) < pageSize {
			// Final page.
			cursor = maxUpdated
			break
		}

		if maxUpdated-1 <= cursor {
			// Full page whose rewound cursor would make no progress: a
			// timestamp tie at the pagination boundary. Walk past it with the
			// page offset instead of moving the cursor.
			pageOffset++
			tieWalks++
			if tieWalks > tieWalkCeiling {
				c.Logger.Error("pagination boundary walk exceeded ceiling, upstream data anomaly",
					zap.Int64("cursor", cursor),
					zap.Int64("pageMaxUpdatedAt", maxUpdated),
					zap.Int("pageOffset", pageOffset))
				break
			}
			continue
		}

		cursor = maxUpdated - 1
		pageOffset = 0
		tieWalks = 0
	}

	if cur == nil || cursor != cursorBefore {
		if err := c.Store.AdvanceCursor(ctx, power.BalanceSyncCursorName, cursor, version); err != nil {
			return nil, fmt.Errorf("persist sync cursor: %w", err)
		}
	}

	out := &types.ActivitySyncBalancesOutput{
		Pages:        pages,
		Records:      records,
		CursorBefore: cursorBefore,
		CursorAfter:  cursor,
		DurationMs:   float64(time.Since(start).Microseconds()) / 1000.0,
	}

	run := power.SyncRun{
		RunID:        uuid.NewString(),
		StartedAt:    start,
		FinishedAt:   time.Now(),
		Pages:        uint32(pages),
		Records:      uint64(records),
		CursorBefore: cursorBefore,
		CursorAfter:  cursor,
		DurationMs:   out.DurationMs,
	}
	if err := c.Store.RecordSyncRun(ctx, run); err != nil {
		// Audit only, the sync itself succeeded.
		c.Logger.Warn("failed to record sync run", zap.Error(err))
	}

	c.Logger.Info("balance sync complete",
		zap.Int("pages", pages),
		zap.Int("records", records),
		zap.Int64("cursorBefore", cursorBefore),
		zap.Int64("cursorAfter", cursor))

	return out, nil
}

// upsertPage writes the page's records that map to users holding an
// allocation. Returns the number upserted and the page's max updatedAt.
func (c *Context) upsertPage(ctx context.Context, page []ledger.BalanceRecord) (int, int64, error) {
	wallets := make([]string, 0, len(page))
	var maxUpdated int64
	for _, rec := range page {
		wallets = append(wallets, rec.Address)
		if rec.UpdatedAt > maxUpdated {
			maxUpdated = rec.UpdatedAt
		}
	}

	users, err := c.resolveUsers(ctx, wallets)
	if err != nil {
		return 0, 0, fmt.Errorf("map wallets to users: %w", err)
	}

	entries := make([]power.BalanceCacheEntry, 0, len(page))
	for _, rec := range page {
		userID, ok := users[strings.ToLower(rec.Address)]
		if !ok {
			c.Logger.Warn("balance record for unknown or unallocated wallet, skipping",
				zap.String("address", rec.Address),
				zap.Int64("updatedAt", rec.UpdatedAt))
			continue
		}
		entries = append(entries, power.BalanceCacheEntry{
			UserID:          userID,
			Balance:         rec.Balance,
			SourceUpdatedAt: rec.UpdatedAt,
		})
	}

	if err := c.Store.UpsertBalances(ctx, entries); err != nil {
		return 0, 0, fmt.Errorf("upsert balance page: %w", err)
	}
	return len(entries), maxUpdated, nil
}
