package activity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/givepower/powersyncx/pkg/db/power"
	"github.com/givepower/powersyncx/pkg/ledger"
	"github.com/givepower/powersyncx/pkg/retry"
)

// newTestContext wires an activity context over an in-memory store and a
// scripted mock ledger, with fast retries and a small page size so pagination
// edge cases are reachable with a handful of records.
func newTestContext(t *testing.T, pageSize int) (*Context, *power.MemStore, *ledger.MockClient) {
	t.Helper()

	store := power.NewMemStore()
	mock := ledger.NewMock()

	c := &Context{
		Logger:               zaptest.NewLogger(t),
		Store:                store,
		LedgerFactory:        ledger.MockFactory(mock),
		PageSize:             pageSize,
		BackfillChunkSize:    DefaultBackfillChunkSize,
		RoundConcurrency:     2,
		RoundBatchSize:       DefaultRoundBatchSize,
		RoundDurationSeconds: 100,
		LedgerRetry: retry.Config{
			MaxRetries:   2,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2.0,
		},
	}
	return c, store, mock
}

// seedUser registers a user with a single 100% allocation.
func seedUser(t *testing.T, store *power.MemStore, id uint64, wallet string, projectID uint64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.UpsertUser(ctx, &power.User{ID: id, WalletAddress: wallet}))
	require.NoError(t, store.UpsertAllocation(ctx, &power.Allocation{
		UserID:     id,
		ProjectID:  projectID,
		Percentage: 100,
	}))
}
