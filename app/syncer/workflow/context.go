package workflow

import (
	"github.com/givepower/powersyncx/app/syncer/activity"
	"github.com/givepower/powersyncx/pkg/temporal"
)

// Workflow names, referenced by the cron triggers in app.go.
const (
	InstantSyncWorkflowName = "InstantSyncWorkflow"
	RoundSyncWorkflowName   = "RoundSyncWorkflow"
	SyncRoundWorkflowName   = "SyncRoundWorkflow"
)

// Context holds the workflow context.
type Context struct {
	TemporalClient  *temporal.Client
	ActivityContext *activity.Context
}
