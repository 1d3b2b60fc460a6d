package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/givepower/powersyncx/app/syncer/types"
	"github.com/givepower/powersyncx/pkg/db/power"
	"github.com/givepower/powersyncx/pkg/redis"
	"github.com/givepower/powersyncx/pkg/retry"
	"github.com/givepower/powersyncx/pkg/timeweight"
)

// ListUnsyncedRounds returns round boundaries still waiting for their power
// computation, oldest round first.
func (c *Context) ListUnsyncedRounds(ctx context.Context) (*types.ActivityListUnsyncedRoundsOutput, error) {
	snaps, err := c.Store.ListUnsyncedSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unsynced rounds: %w", err)
	}
	out := &types.ActivityListUnsyncedRoundsOutput{}
	for _, s := range snaps {
		out.Rounds = append(out.Rounds, types.RoundRef{Round: s.Round, SnapshotTime: s.SnapshotTime})
	}
	return out, nil
}

// SyncRoundPower computes every eligible user's time-weighted average power
// over the round window ending at the snapshot time and writes one record per
// user. The round is marked synced only after every batch has been written;
// any failure leaves it unsynced so the next sweep retries it in full, with
// already-written records absorbed as idempotent upserts.
func (c *Context) SyncRoundPower(ctx context.Context, in *types.ActivitySyncRoundInput) (*types.ActivitySyncRoundOutput, error) {
	start := time.Now()

	batchSize := c.RoundBatchSize
	if batchSize <= 0 {
		batchSize = DefaultRoundBatchSize
	}
	duration := c.RoundDurationSeconds
	if duration <= 0 {
		duration = DefaultRoundDuration
	}
	from := in.SnapshotTime - duration
	to := in.SnapshotTime

	averager := &timeweight.Averager{Ledger: c.Ledger()}
	pool := c.roundBatchPool()

	written := 0
	skipped := 0
	offset := 0

	for {
		users, err := c.Store.UsersWithAllocations(ctx, batchSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list eligible users (offset=%d): %w", offset, err)
		}
		if len(users) == 0 {
			break
		}

		group := pool.NewGroupContext(ctx)
		groupCtx := group.Context()

		var mu sync.Mutex
		records := make([]power.RoundPowerRecord, 0, len(users))

		for _, u := range users {
			user := u
			group.SubmitErr(func() error {
				if err := groupCtx.Err(); err != nil {
					return err
				}

				// Claim dedup: a record from a previous partial run stands.
				existing, err := c.Store.GetRoundPower(groupCtx, user.ID, in.Round)
				if err != nil {
					return err
				}
				if existing != nil {
					mu.Lock()
					skipped++
					mu.Unlock()
					return nil
				}

				var avg float64
				err = retry.WithBackoff(groupCtx, c.ledgerRetry(), c.Logger, "power snapshot", func() error {
					var callErr error
					avg, callErr = averager.AveragePower(groupCtx, user.WalletAddress, from, to)
					return callErr
				})
				if err != nil {
					return fmt.Errorf("average power user=%d round=%d: %w", user.ID, in.Round, err)
				}

				mu.Lock()
				records = append(records, power.RoundPowerRecord{
					UserID:       user.ID,
					Round:        in.Round,
					AveragePower: avg,
				})
				mu.Unlock()
				return nil
			})
		}

		if err := group.Wait(); err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
				c.Logger.Warn("round power batch failed, round stays unsynced",
					zap.Uint64("round", in.Round),
					zap.Error(err))
			}
			return nil, err
		}

		if err := c.Store.UpsertRoundPower(ctx, records); err != nil {
			return nil, fmt.Errorf("write round power batch round=%d: %w", in.Round, err)
		}
		written += len(records)
		offset += len(users)
	}

	if err := c.Store.MarkRoundSynced(ctx, in.Round); err != nil {
		return nil, err
	}

	if c.RedisClient != nil {
		payload, _ := json.Marshal(map[string]interface{}{
			"round":    in.Round,
			"users":    written + skipped,
			"syncedAt": time.Now().UnixMilli(),
		})
		c.RedisClient.Publish(ctx, redis.ChannelRoundSynced, payload)
	}

	out := &types.ActivitySyncRoundOutput{
		Users:      written,
		Skipped:    skipped,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}
	c.Logger.Info("round power synced",
		zap.Uint64("round", in.Round),
		zap.Int("users", written),
		zap.Int("skipped", skipped))
	return out, nil
}
