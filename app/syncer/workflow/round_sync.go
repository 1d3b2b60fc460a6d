package workflow

import (
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/givepower/powersyncx/app/syncer/types"
)

// RoundSyncWorkflow sweeps unsynced round boundaries oldest-first, running
// one child workflow per round to completion before moving to the next.
// Rounds are processed strictly in order since eligibility logic downstream
// assumes earlier rounds are already recorded.
func (wc *Context) RoundSyncWorkflow(ctx workflow.Context) (types.WorkflowRoundSyncOutput, error) {
	start := workflow.Now(ctx)
	logger := workflow.GetLogger(ctx)

	listOptions := workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}

	var list types.ActivityListUnsyncedRoundsOutput
	err := workflow.ExecuteActivity(
		workflow.WithActivityOptions(ctx, listOptions),
		wc.ActivityContext.ListUnsyncedRounds,
	).Get(ctx, &list)
	if err != nil {
		logger.Error("failed to list unsynced rounds", zap.Error(err))
		return types.WorkflowRoundSyncOutput{}, err
	}

	synced := 0
	for _, round := range list.Rounds {
		childOptions := workflow.ChildWorkflowOptions{
			WorkflowID: wc.TemporalClient.GetRoundPowerWorkflowId(round.Round),
			RetryPolicy: &temporal.RetryPolicy{
				InitialInterval:    time.Second,
				BackoffCoefficient: 2.0,
				MaximumInterval:    time.Minute,
				MaximumAttempts:    2,
			},
		}
		childCtx := workflow.WithChildOptions(ctx, childOptions)

		err := workflow.ExecuteChildWorkflow(childCtx, SyncRoundWorkflowName, types.WorkflowSyncRoundInput{
			Round:        round.Round,
			SnapshotTime: round.SnapshotTime,
		}).Get(ctx, nil)
		if err != nil {
			if strings.Contains(err.Error(), "ChildWorkflowExecutionAlreadyStartedError") {
				// A previous sweep is still working on this round.
				logger.Info("round already being synced, stopping sweep",
					zap.Uint64("round", round.Round))
				break
			}
			// The round stays unsynced; stop here so rounds keep completing
			// in order and retry on the next sweep.
			logger.Warn("round sync failed, will retry next sweep",
				zap.Uint64("round", round.Round),
				zap.Error(err))
			break
		}
		synced++
	}

	out := types.WorkflowRoundSyncOutput{
		RoundsSynced: synced,
		DurationMs:   float64(workflow.Now(ctx).Sub(start).Microseconds()) / 1000.0,
	}
	logger.Info("round sweep complete", zap.Int("roundsSynced", synced), zap.Int("pending", len(list.Rounds)-synced))
	return out, nil
}

// SyncRoundWorkflow computes and persists power records for a single round.
func (wc *Context) SyncRoundWorkflow(ctx workflow.Context, in types.WorkflowSyncRoundInput) (types.ActivitySyncRoundOutput, error) {
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var out types.ActivitySyncRoundOutput
	err := workflow.ExecuteActivity(ctx, wc.ActivityContext.SyncRoundPower, types.ActivitySyncRoundInput{
		Round:        in.Round,
		SnapshotTime: in.SnapshotTime,
	}).Get(ctx, &out)
	return out, err
}
