package activity

import (
	"context"
	"strings"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/givepower/powersyncx/pkg/db/power"
	"github.com/givepower/powersyncx/pkg/ledger"
	"github.com/givepower/powersyncx/pkg/redis"
	"github.com/givepower/powersyncx/pkg/retry"
	temporalclient "github.com/givepower/powersyncx/pkg/temporal"
)

// Default tuning values, overridable from the environment at process start.
const (
	DefaultPageSize          = 1000
	DefaultBackfillChunkSize = 50
	DefaultRoundConcurrency  = 5
	DefaultRoundBatchSize    = 100
	DefaultRoundDuration     = 7 * 24 * 60 * 60 // seconds

	// How many times a full page entirely at or before the cursor is walked
	// past by page offset before the run gives up on that boundary.
	tieWalkCeiling = 5
)

type Context struct {
	Logger *zap.Logger
	// Power store (balance cache, cursor, rounds, ranking)
	Store power.Store
	// For calls to the external balance/power ledger
	LedgerFactory   ledger.Factory
	LedgerEndpoints []string
	// For scheduling workflows
	TemporalClient *temporalclient.Client
	// For publishing real-time events
	RedisClient *redis.Client

	// Tuning
	PageSize             int
	BackfillChunkSize    int
	RoundConcurrency     int
	RoundBatchSize       int
	RoundDurationSeconds int64

	// LedgerRetry overrides the per-call retry settings when set.
	LedgerRetry retry.Config

	// wallet -> user id, warm across pages within a process
	walletCache *xsync.Map[string, uint64]

	ledgerOnce   sync.Once
	ledgerClient ledger.Client

	roundPoolOnce sync.Once
	roundPool     pond.Pool
}

func (c *Context) ledgerRetry() retry.Config {
	if c.LedgerRetry.MaxRetries > 0 {
		return c.LedgerRetry
	}
	return retry.LedgerCallConfig()
}

// Ledger returns the shared ledger client, building it on first use.
func (c *Context) Ledger() ledger.Client {
	c.ledgerOnce.Do(func() {
		c.ledgerClient = c.LedgerFactory.NewClient(c.LedgerEndpoints)
	})
	return c.ledgerClient
}

// roundBatchPool returns the shared worker pool bounding concurrent power
// lookups against the ledger.
func (c *Context) roundBatchPool() pond.Pool {
	c.roundPoolOnce.Do(func() {
		size := c.RoundConcurrency
		if size <= 0 {
			size = DefaultRoundConcurrency
		}
		c.roundPool = pond.NewPool(size, pond.WithQueueSize(size*4))
	})
	return c.roundPool
}

// resolveUsers maps wallet addresses to user ids, consulting the in-process
// cache first and the store for the remainder. Only users holding at least
// one allocation resolve; everyone else is absent from the result.
func (c *Context) resolveUsers(ctx context.Context, wallets []string) (map[string]uint64, error) {
	if c.walletCache == nil {
		c.walletCache = xsync.NewMap[string, uint64]()
	}

	resolved := make(map[string]uint64, len(wallets))
	var misses []string
	for _, w := range wallets {
		w = strings.ToLower(w)
		if id, ok := c.walletCache.Load(w); ok {
			resolved[w] = id
		} else {
			misses = append(misses, w)
		}
	}

	if len(misses) > 0 {
		found, err := c.Store.UsersByWallets(ctx, misses)
		if err != nil {
			return nil, err
		}
		for w, id := range found {
			resolved[w] = id
			c.walletCache.Store(w, id)
		}
	}

	return resolved, nil
}
