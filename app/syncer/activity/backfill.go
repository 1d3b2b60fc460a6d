package activity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/givepower/powersyncx/app/syncer/types"
	"github.com/givepower/powersyncx/pkg/db/power"
	"github.com/givepower/powersyncx/pkg/ledger"
	"github.com/givepower/powersyncx/pkg/retry"
)

// BackfillBalances fills the balance cache for users who hold an allocation
// but were never covered by a delta page, asking the ledger for their latest
// balance in chunks. Users the ledger has no record for stay uncached and
// count as zero power until a later pass covers them.
func (c *Context) BackfillBalances(ctx context.Context) (*types.ActivityBackfillOutput, error) {
	start := time.Now()

	chunkSize := c.BackfillChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultBackfillChunkSize
	}

	led := c.Ledger()
	scanned := 0
	filled := 0
	offset := 0

	for {
		users, err := c.Store.UsersMissingBalance(ctx, chunkSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list users missing balance: %w", err)
		}
		if len(users) == 0 {
			break
		}
		scanned += len(users)

		byWallet := make(map[string]uint64, len(users))
		wallets := make([]string, 0, len(users))
		for _, u := range users {
			w := strings.ToLower(u.WalletAddress)
			byWallet[w] = u.ID
			wallets = append(wallets, w)
		}

		var records []ledger.BalanceRecord
		err = retry.WithBackoff(ctx, c.ledgerRetry(), c.Logger, "balances latest", func() error {
			var callErr error
			records, callErr = led.LatestBalances(ctx, wallets)
			return callErr
		})
		if err != nil {
			return nil, fmt.Errorf("fetch latest balances (chunk offset=%d): %w", offset, err)
		}

		entries := make([]power.BalanceCacheEntry, 0, len(records))
		for _, rec := range records {
			userID, ok := byWallet[strings.ToLower(rec.Address)]
			if !ok {
				c.Logger.Warn("latest balance for wallet outside requested chunk, skipping",
					zap.String("address", rec.Address))
				continue
			}
			entries = append(entries, power.BalanceCacheEntry{
				UserID:          userID,
				Balance:         rec.Balance,
				SourceUpdatedAt: rec.UpdatedAt,
			})
		}
		if err := c.Store.UpsertBalances(ctx, entries); err != nil {
			return nil, fmt.Errorf("upsert backfilled balances: %w", err)
		}
		filled += len(entries)

		// Filled users drop out of the missing set, so only the unfilled
		// remainder of this chunk shifts the next query window.
		offset += len(users) - len(entries)
	}

	out := &types.ActivityBackfillOutput{
		Scanned:    scanned,
		Filled:     filled,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}
	c.Logger.Info("balance backfill complete",
		zap.Int("scanned", scanned),
		zap.Int("filled", filled))
	return out, nil
}
