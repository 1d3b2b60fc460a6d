package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/givepower/powersyncx/app/syncer/types"
)

// InstantSyncWorkflow runs one full instant-sync pass: delta sync against the
// ledger, gap backfill for users never covered by a delta page, then the
// ranking rebuild. The three steps are strictly sequential since the ranking
// reads what the first two write.
//
// The workflow runs under a fixed workflow ID, so a cron tick that fires
// while a previous pass is still executing is rejected by the server instead
// of racing the shared cursor.
func (wc *Context) InstantSyncWorkflow(ctx workflow.Context) (types.WorkflowInstantSyncOutput, error) {
	start := workflow.Now(ctx)
	logger := workflow.GetLogger(ctx)

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var syncOut types.ActivitySyncBalancesOutput
	if err := workflow.ExecuteActivity(ctx, wc.ActivityContext.SyncBalances).Get(ctx, &syncOut); err != nil {
		logger.Error("delta sync failed", zap.Error(err))
		return types.WorkflowInstantSyncOutput{}, err
	}

	var backfillOut types.ActivityBackfillOutput
	if err := workflow.ExecuteActivity(ctx, wc.ActivityContext.BackfillBalances).Get(ctx, &backfillOut); err != nil {
		logger.Error("gap backfill failed", zap.Error(err))
		return types.WorkflowInstantSyncOutput{}, err
	}

	if err := workflow.ExecuteActivity(ctx, wc.ActivityContext.RefreshRanking).Get(ctx, nil); err != nil {
		logger.Error("ranking refresh failed", zap.Error(err))
		return types.WorkflowInstantSyncOutput{}, err
	}

	out := types.WorkflowInstantSyncOutput{
		Pages:       syncOut.Pages,
		Records:     syncOut.Records,
		Backfilled:  backfillOut.Filled,
		CursorAfter: syncOut.CursorAfter,
		DurationMs:  float64(workflow.Now(ctx).Sub(start).Microseconds()) / 1000.0,
	}
	logger.Info("instant sync complete",
		zap.Int("pages", out.Pages),
		zap.Int("records", out.Records),
		zap.Int("backfilled", out.Backfilled),
		zap.Int64("cursorAfter", out.CursorAfter))
	return out, nil
}
