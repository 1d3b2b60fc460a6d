package activity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/givepower/powersyncx/pkg/ledger"
)

func TestBackfillFillsAllocatedUsersWithoutBalance(t *testing.T) {
	ctx := context.Background()
	c, store, mock := newTestContext(t, 10)

	// The delta feed never covered this user, but the ledger knows a latest
	// balance for the wallet.
	seedUser(t, store, 1, "0xaaa", 7)
	mock.SetLatestOnly(ledger.BalanceRecord{Address: "0xaaa", Balance: 75, UpdatedAt: 42})

	out, err := c.BackfillBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Scanned)
	assert.Equal(t, 1, out.Filled)

	entry, err := store.GetBalance(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 75.0, entry.Balance)
	assert.Equal(t, int64(42), entry.SourceUpdatedAt)

	// Once cached, the user contributes to the next materialization.
	require.NoError(t, c.RefreshRanking(ctx))
	rank, err := store.GetProjectRank(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, rank)
	assert.Equal(t, 75.0, rank.TotalPower)
}

func TestBackfillLeavesUnknownWalletsUncached(t *testing.T) {
	ctx := context.Background()
	c, store, _ := newTestContext(t, 10)

	seedUser(t, store, 1, "0xghost", 7)

	out, err := c.BackfillBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Scanned)
	assert.Zero(t, out.Filled)

	entry, err := store.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, entry)

	// Uncached means zero power, not an error.
	require.NoError(t, c.RefreshRanking(ctx))
	rank, err := store.GetProjectRank(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, rank)
	assert.Zero(t, rank.TotalPower)
}

func TestBackfillSkipsUsersAlreadyCached(t *testing.T) {
	ctx := context.Background()
	c, store, mock := newTestContext(t, 10)

	seedUser(t, store, 1, "0xaaa", 7)
	mock.AddBalance(ledger.BalanceRecord{Address: "0xaaa", Balance: 10, UpdatedAt: 5})

	_, err := c.SyncBalances(ctx)
	require.NoError(t, err)

	out, err := c.BackfillBalances(ctx)
	require.NoError(t, err)
	assert.Zero(t, out.Scanned)

	entry, err := store.GetBalance(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 10.0, entry.Balance)
}
