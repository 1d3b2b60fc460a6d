package power

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceCursorDetectsConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	require.NoError(t, store.AdvanceCursor(ctx, BalanceSyncCursorName, 100, 0))

	cur, err := store.GetCursor(ctx, BalanceSyncCursorName)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, int64(100), cur.Value)
	assert.Equal(t, uint64(1), cur.Version)

	// A second writer advancing from the version it read earlier collides.
	err = store.AdvanceCursor(ctx, BalanceSyncCursorName, 200, 0)
	require.ErrorIs(t, err, ErrCursorConflict)

	// Advancing from the current version succeeds.
	require.NoError(t, store.AdvanceCursor(ctx, BalanceSyncCursorName, 200, 1))
}

func TestUpsertBalancesKeepsNewestSource(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	require.NoError(t, store.UpsertBalances(ctx, []BalanceCacheEntry{
		{UserID: 1, Balance: 100, SourceUpdatedAt: 50},
	}))
	// A stale record never overwrites a newer one.
	require.NoError(t, store.UpsertBalances(ctx, []BalanceCacheEntry{
		{UserID: 1, Balance: 1, SourceUpdatedAt: 10},
	}))

	entry, err := store.GetBalance(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 100.0, entry.Balance)
	assert.Equal(t, int64(50), entry.SourceUpdatedAt)
}

func TestRefreshRankingConsistency(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	// User 1 splits 60/40 across two projects, user 2 is all-in on one,
	// user 3 has an allocation but no cached balance and contributes zero.
	require.NoError(t, store.UpsertUser(ctx, &User{ID: 1, WalletAddress: "0xa"}))
	require.NoError(t, store.UpsertUser(ctx, &User{ID: 2, WalletAddress: "0xb"}))
	require.NoError(t, store.UpsertUser(ctx, &User{ID: 3, WalletAddress: "0xc"}))
	require.NoError(t, store.UpsertAllocation(ctx, &Allocation{UserID: 1, ProjectID: 10, Percentage: 60}))
	require.NoError(t, store.UpsertAllocation(ctx, &Allocation{UserID: 1, ProjectID: 20, Percentage: 40}))
	require.NoError(t, store.UpsertAllocation(ctx, &Allocation{UserID: 2, ProjectID: 20, Percentage: 100}))
	require.NoError(t, store.UpsertAllocation(ctx, &Allocation{UserID: 3, ProjectID: 10, Percentage: 100}))
	require.NoError(t, store.UpsertBalances(ctx, []BalanceCacheEntry{
		{UserID: 1, Balance: 1000, SourceUpdatedAt: 1},
		{UserID: 2, Balance: 500, SourceUpdatedAt: 1},
	}))

	require.NoError(t, store.RefreshRanking(ctx))

	ranking, err := store.GetRanking(ctx)
	require.NoError(t, err)
	require.Len(t, ranking, 2)

	// project 20: 1000*0.4 + 500 = 900; project 10: 1000*0.6 + 0 = 600
	assert.Equal(t, uint64(20), ranking[0].ProjectID)
	assert.Equal(t, 900.0, ranking[0].TotalPower)
	assert.Equal(t, uint64(1), ranking[0].Rank)
	assert.Equal(t, uint64(10), ranking[1].ProjectID)
	assert.Equal(t, 600.0, ranking[1].TotalPower)
}

func TestRefreshRankingBreaksTiesByProjectID(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	require.NoError(t, store.UpsertUser(ctx, &User{ID: 1, WalletAddress: "0xa"}))
	require.NoError(t, store.UpsertAllocation(ctx, &Allocation{UserID: 1, ProjectID: 9, Percentage: 50}))
	require.NoError(t, store.UpsertAllocation(ctx, &Allocation{UserID: 1, ProjectID: 3, Percentage: 50}))
	require.NoError(t, store.UpsertBalances(ctx, []BalanceCacheEntry{
		{UserID: 1, Balance: 100, SourceUpdatedAt: 1},
	}))

	require.NoError(t, store.RefreshRanking(ctx))

	ranking, err := store.GetRanking(ctx)
	require.NoError(t, err)
	require.Len(t, ranking, 2)
	assert.Equal(t, uint64(3), ranking[0].ProjectID)
	assert.Equal(t, uint64(9), ranking[1].ProjectID)
}

func TestUsersMissingBalancePagination(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	for id := uint64(1); id <= 4; id++ {
		require.NoError(t, store.UpsertUser(ctx, &User{ID: id, WalletAddress: string(rune('a' + id))}))
		require.NoError(t, store.UpsertAllocation(ctx, &Allocation{UserID: id, ProjectID: 1, Percentage: 100}))
	}
	require.NoError(t, store.UpsertBalances(ctx, []BalanceCacheEntry{
		{UserID: 2, Balance: 10, SourceUpdatedAt: 1},
	}))

	missing, err := store.UsersMissingBalance(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, missing, 2)
	assert.Equal(t, uint64(1), missing[0].ID)
	assert.Equal(t, uint64(3), missing[1].ID)

	rest, err := store.UsersMissingBalance(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, uint64(4), rest[0].ID)
}
