package temporal

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"go.temporal.io/api/enums/v1"
	taskqueuepb "go.temporal.io/api/taskqueue/v1"
	workflowservicepb "go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"

	"github.com/givepower/powersyncx/pkg/utils"
)

type Client struct {
	TClient   client.Client
	Namespace string

	// Task Queues
	SyncerQueue string // powersync - balance sync, round sync and ranking tasks all share one queue.

	// Workflow IDs
	InstantSyncWorkflowId string
	RoundSyncWorkflowId   string
	RoundPowerWorkflowId  string
}

type Health struct {
	ConnectionOK bool                      `json:"connection_ok"`
	SyncerQueue  []*taskqueuepb.PollerInfo `json:"syncer_queue"`
}

func NewClient(ctx context.Context, logger *zap.Logger) (*Client, error) {
	host := utils.Env("TEMPORAL_HOSTPORT", "localhost:7233")
	ns := utils.Env("TEMPORAL_NAMESPACE", "powersync")
	loggerWrapper := NewZapAdapter(logger)

	logger.Info("Connecting to Temporal", zap.String("host", host), zap.String("namespace", ns))
	tClient, err := Dial(ctx, host, ns, loggerWrapper)
	if err != nil {
		return nil, err
	}

	if _, err = tClient.CheckHealth(ctx, nil); err != nil {
		return nil, err
	}

	return &Client{
		TClient:   tClient,
		Namespace: ns,
		// for now this is just hardcoded, could be configurable if we need it
		SyncerQueue: "powersync",
		// workflow IDs
		InstantSyncWorkflowId: "instant-sync",
		RoundSyncWorkflowId:   "round-sync",
		RoundPowerWorkflowId:  "round-sync:round:%d",
	}, nil
}

// Dial connects to Temporal using the provided hostPort and namespace.
func Dial(ctx context.Context, hostPort, namespace string, logger log.Logger) (client.Client, error) {
	return client.DialContext(
		ctx,
		client.Options{
			HostPort:  hostPort,
			Namespace: namespace,
			Logger:    logger,
		},
	)
}

// GetSyncerQueue returns the syncer queue.
func (c *Client) GetSyncerQueue() string { return c.SyncerQueue }

// GetInstantSyncWorkflowId returns the singleton workflow ID for the instant
// balance sync. A fixed ID means at most one sync runs at a time: a trigger
// that fires while a previous run is still executing is rejected by the
// server and treated as a skip.
func (c *Client) GetInstantSyncWorkflowId() string { return c.InstantSyncWorkflowId }

// GetRoundSyncWorkflowId returns the singleton workflow ID for the round
// power sweep.
func (c *Client) GetRoundSyncWorkflowId() string { return c.RoundSyncWorkflowId }

// GetRoundPowerWorkflowId returns the workflow ID for syncing one round's power.
func (c *Client) GetRoundPowerWorkflowId(round uint64) string {
	return fmt.Sprintf(c.RoundPowerWorkflowId, round)
}

// Health returns the health of the Temporal client.
func (c *Client) Health(ctx context.Context) (Health, error) {
	h := Health{ConnectionOK: true}
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	svc := c.TClient.WorkflowService()
	if svc != nil {
		if rep, err := svc.DescribeTaskQueue(ctx, &workflowservicepb.DescribeTaskQueueRequest{
			Namespace:     c.Namespace,
			TaskQueue:     &taskqueuepb.TaskQueue{Name: c.SyncerQueue},
			TaskQueueType: enums.TASK_QUEUE_TYPE_WORKFLOW,
		}); err == nil {
			h.SyncerQueue = rep.GetPollers()
		}
	}
	return h, nil
}
