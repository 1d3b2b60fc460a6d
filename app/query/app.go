package query

import (
	"context"

	"go.uber.org/zap"

	"github.com/givepower/powersyncx/app/query/types"
	"github.com/givepower/powersyncx/pkg/db/power"
	"github.com/givepower/powersyncx/pkg/logging"
	"github.com/givepower/powersyncx/pkg/redis"
	"github.com/givepower/powersyncx/pkg/utils"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	store, err := power.New(ctx, logger, "query")
	if err != nil {
		logger.Fatal("Unable to initialize power database", zap.Error(err))
	}

	// Redis only feeds live-update subscriptions; the API works without it.
	var redisClient *redis.Client
	if utils.Env("REDIS_ENABLED", "false") == "true" {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - live updates disabled", zap.Error(err))
			redisClient = nil
		}
	}

	return &types.App{
		Store:       store,
		RedisClient: redisClient,
		Logger:      logger,
	}
}
