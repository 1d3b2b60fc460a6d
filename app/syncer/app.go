package syncer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	temporalworkflow "go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/givepower/powersyncx/app/syncer/activity"
	"github.com/givepower/powersyncx/app/syncer/workflow"
	"github.com/givepower/powersyncx/pkg/db/power"
	"github.com/givepower/powersyncx/pkg/ledger"
	"github.com/givepower/powersyncx/pkg/logging"
	"github.com/givepower/powersyncx/pkg/redis"
	"github.com/givepower/powersyncx/pkg/temporal"
	"github.com/givepower/powersyncx/pkg/utils"
)

type App struct {
	Worker         worker.Worker
	TemporalClient *temporal.Client
	Store          power.Store
	Logger         *zap.Logger

	// Cron fires the sync triggers on wall-clock schedules.
	Cron            *cron.Cron
	InstantSyncSpec string
	RoundSyncSpec   string
}

// Initialize initializes the application.
func Initialize(ctx context.Context) *App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	store, err := power.New(ctx, logger, "syncer")
	if err != nil {
		logger.Fatal("Unable to initialize power database", zap.Error(err))
	}

	temporalClient, err := temporal.NewClient(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to establish temporal connection", zap.Error(err))
	}

	// Redis is optional: events are best-effort and the pipeline works without them.
	redisClient, err := redis.NewClient(ctx, logger)
	if err != nil {
		logger.Warn("Redis unavailable, events disabled", zap.Error(err))
		redisClient = nil
	}

	endpoints := strings.Split(utils.Env("LEDGER_ENDPOINTS", "http://localhost:8080"), ",")
	var factory ledger.Factory
	if utils.Env("LEDGER_PROVIDER", "http") == "mock" {
		factory = ledger.MockFactory(ledger.NewMock())
	} else {
		factory = ledger.NewHTTPFactory(ledger.Opts{
			RPS: 20, Burst: 40, BreakerFailures: 3, BreakerCooldown: 5 * time.Second,
		})
	}

	activityContext := &activity.Context{
		Logger:               logger,
		Store:                store,
		LedgerFactory:        factory,
		LedgerEndpoints:      endpoints,
		TemporalClient:       temporalClient,
		RedisClient:          redisClient,
		PageSize:             utils.EnvInt("SYNC_PAGE_SIZE", activity.DefaultPageSize),
		BackfillChunkSize:    utils.EnvInt("BACKFILL_CHUNK_SIZE", activity.DefaultBackfillChunkSize),
		RoundConcurrency:     utils.EnvInt("ROUND_SYNC_CONCURRENCY", activity.DefaultRoundConcurrency),
		RoundBatchSize:       utils.EnvInt("ROUND_BATCH_SIZE", activity.DefaultRoundBatchSize),
		RoundDurationSeconds: utils.EnvInt64("ROUND_DURATION_SECONDS", activity.DefaultRoundDuration),
	}
	workflowContext := &workflow.Context{
		TemporalClient:  temporalClient,
		ActivityContext: activityContext,
	}

	wkr := worker.New(
		temporalClient.TClient,
		temporalClient.GetSyncerQueue(),
		worker.Options{
			MaxConcurrentWorkflowTaskPollers: 5,
			MaxConcurrentActivityTaskPollers: 5,
			// A handful of concurrent executions is plenty: instant sync is a
			// singleton and round batches bound their own ledger concurrency.
			MaxConcurrentWorkflowTaskExecutionSize: 20,
			MaxConcurrentActivityExecutionSize:     50,
			WorkerStopTimeout:                      1 * time.Minute,
		},
	)

	wkr.RegisterWorkflowWithOptions(
		workflowContext.InstantSyncWorkflow,
		temporalworkflow.RegisterOptions{Name: workflow.InstantSyncWorkflowName},
	)
	wkr.RegisterWorkflowWithOptions(
		workflowContext.RoundSyncWorkflow,
		temporalworkflow.RegisterOptions{Name: workflow.RoundSyncWorkflowName},
	)
	wkr.RegisterWorkflowWithOptions(
		workflowContext.SyncRoundWorkflow,
		temporalworkflow.RegisterOptions{Name: workflow.SyncRoundWorkflowName},
	)
	wkr.RegisterActivity(activityContext.SyncBalances)
	wkr.RegisterActivity(activityContext.BackfillBalances)
	wkr.RegisterActivity(activityContext.RefreshRanking)
	wkr.RegisterActivity(activityContext.ListUnsyncedRounds)
	wkr.RegisterActivity(activityContext.SyncRoundPower)

	app := &App{
		Worker:          wkr,
		TemporalClient:  temporalClient,
		Store:           store,
		Logger:          logger,
		InstantSyncSpec: utils.Env("INSTANT_SYNC_CRON", "*/30 * * * * *"),
		RoundSyncSpec:   utils.Env("ROUND_SYNC_CRON", "0 */5 * * * *"),
	}
	if err := app.SetupScheduler(ctx, cron.DefaultLogger); err != nil {
		logger.Fatal("Unable to set up scheduler", zap.Error(err))
	}

	return app
}

// SetupScheduler sets up the cron triggers. Each tick starts a workflow under
// a fixed ID; ticks that fire while the previous run is still executing are
// deduplicated by the server rather than queued twice.
func (a *App) SetupScheduler(ctx context.Context, logger cron.Logger) error {
	// Seconds field, optional
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger)))

	if _, err := a.Cron.AddFunc(a.InstantSyncSpec, func() {
		a.trigger(ctx, a.TemporalClient.GetInstantSyncWorkflowId(), workflow.InstantSyncWorkflowName)
	}); err != nil {
		return err
	}
	if _, err := a.Cron.AddFunc(a.RoundSyncSpec, func() {
		a.trigger(ctx, a.TemporalClient.GetRoundSyncWorkflowId(), workflow.RoundSyncWorkflowName)
	}); err != nil {
		return err
	}
	return nil
}

// trigger starts a workflow under a fixed ID (idempotent by WorkflowID).
func (a *App) trigger(ctx context.Context, workflowID, workflowName string) {
	rctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := a.TemporalClient.TClient.ExecuteWorkflow(
		rctx,
		client.StartWorkflowOptions{
			ID:        workflowID,
			TaskQueue: a.TemporalClient.GetSyncerQueue(),
			RetryPolicy: &sdktemporal.RetryPolicy{
				InitialInterval:    time.Second,
				BackoffCoefficient: 2.0,
				MaximumInterval:    time.Minute,
				MaximumAttempts:    3,
			},
		},
		workflowName,
	)
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			// Previous run still in flight, skip this tick.
			return
		}
		a.Logger.Error("failed to trigger workflow",
			zap.String("workflowId", workflowID),
			zap.Error(err))
	}
}

// Start starts the worker and cron and blocks until the context is canceled.
func (a *App) Start(ctx context.Context) {
	if err := a.Worker.Start(); err != nil {
		a.Logger.Fatal("Unable to start worker", zap.Error(err))
	}
	a.Cron.Start()
	a.Logger.Info("Syncer started",
		zap.String("instantSyncSpec", a.InstantSyncSpec),
		zap.String("roundSyncSpec", a.RoundSyncSpec))
	<-ctx.Done()
	a.Stop()
}

// Stop stops the cron and worker.
func (a *App) Stop() {
	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}
	a.Worker.Stop()
	_ = a.Store.Close()
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
