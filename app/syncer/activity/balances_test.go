package activity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/givepower/powersyncx/pkg/db/power"
	"github.com/givepower/powersyncx/pkg/ledger"
)

func TestSyncBalancesAdvancesCursorAcrossPages(t *testing.T) {
	ctx := context.Background()
	c, store, mock := newTestContext(t, 2)

	seedUser(t, store, 1, "0xaaa", 7)
	seedUser(t, store, 2, "0xbbb", 7)
	seedUser(t, store, 3, "0xccc", 8)

	mock.AddBalance(ledger.BalanceRecord{Address: "0xaaa", Balance: 100, UpdatedAt: 10})
	mock.AddBalance(ledger.BalanceRecord{Address: "0xbbb", Balance: 200, UpdatedAt: 20})
	mock.AddBalance(ledger.BalanceRecord{Address: "0xccc", Balance: 300, UpdatedAt: 30})

	out, err := c.SyncBalances(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(0), out.CursorBefore)
	assert.Equal(t, int64(30), out.CursorAfter)

	cur, err := store.GetCursor(ctx, power.BalanceSyncCursorName)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, int64(30), cur.Value)

	for id, want := range map[uint64]float64{1: 100, 2: 200, 3: 300} {
		entry, err := store.GetBalance(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, entry, "user %d should be cached", id)
		assert.Equal(t, want, entry.Balance)
	}
}

func TestSyncBalancesTieAtPageBoundary(t *testing.T) {
	ctx := context.Background()
	c, store, mock := newTestContext(t, 2)

	seedUser(t, store, 1, "0xaaa", 7)
	seedUser(t, store, 2, "0xbbb", 7)
	seedUser(t, store, 3, "0xccc", 7)

	// Three records sharing one timestamp with a page size of two: the page
	// boundary lands inside the tie and the cursor alone cannot walk past it.
	for _, addr := range []string{"0xaaa", "0xbbb", "0xccc"} {
		mock.AddBalance(ledger.BalanceRecord{Address: addr, Balance: 50, UpdatedAt: 100})
	}

	out, err := c.SyncBalances(ctx)
	require.NoError(t, err)

	for id := uint64(1); id <= 3; id++ {
		entry, err := store.GetBalance(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, entry, "user %d lost at the tied boundary", id)
		assert.Equal(t, int64(100), entry.SourceUpdatedAt)
	}

	// The final partial page ends the run with the cursor at the tie.
	assert.Equal(t, int64(100), out.CursorAfter)
}

func TestSyncBalancesCursorNeverRewindsBelowOneUnit(t *testing.T) {
	ctx := context.Background()
	c, store, mock := newTestContext(t, 2)

	seedUser(t, store, 1, "0xaaa", 7)
	seedUser(t, store, 2, "0xbbb", 7)

	mock.AddBalance(ledger.BalanceRecord{Address: "0xaaa", Balance: 1, UpdatedAt: 40})
	mock.AddBalance(ledger.BalanceRecord{Address: "0xbbb", Balance: 2, UpdatedAt: 50})

	_, err := c.SyncBalances(ctx)
	require.NoError(t, err)

	before, err := store.GetCursor(ctx, power.BalanceSyncCursorName)
	require.NoError(t, err)
	require.NotNil(t, before)

	// New data strictly after the cursor: the cursor may only move forward.
	mock.AddBalance(ledger.BalanceRecord{Address: "0xaaa", Balance: 3, UpdatedAt: 60})

	_, err = c.SyncBalances(ctx)
	require.NoError(t, err)

	after, err := store.GetCursor(ctx, power.BalanceSyncCursorName)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.GreaterOrEqual(t, after.Value, before.Value)
}

func TestSyncBalancesIdempotentWithNoNewData(t *testing.T) {
	ctx := context.Background()
	c, store, mock := newTestContext(t, 2)

	seedUser(t, store, 1, "0xaaa", 7)
	mock.AddBalance(ledger.BalanceRecord{Address: "0xaaa", Balance: 100, UpdatedAt: 10})

	_, err := c.SyncBalances(ctx)
	require.NoError(t, err)
	require.NoError(t, c.RefreshRanking(ctx))

	cur1, err := store.GetCursor(ctx, power.BalanceSyncCursorName)
	require.NoError(t, err)
	bal1, err := store.GetBalance(ctx, 1)
	require.NoError(t, err)
	rank1, err := store.GetRanking(ctx)
	require.NoError(t, err)

	// Second run with nothing new upstream.
	out, err := c.SyncBalances(ctx)
	require.NoError(t, err)
	require.NoError(t, c.RefreshRanking(ctx))
	assert.Zero(t, out.Records)

	cur2, err := store.GetCursor(ctx, power.BalanceSyncCursorName)
	require.NoError(t, err)
	bal2, err := store.GetBalance(ctx, 1)
	require.NoError(t, err)
	rank2, err := store.GetRanking(ctx)
	require.NoError(t, err)

	assert.Equal(t, cur1, cur2)
	assert.Equal(t, bal1, bal2)
	assert.Equal(t, rank1, rank2)
}

func TestSyncBalancesSkipsUnknownWallets(t *testing.T) {
	ctx := context.Background()
	c, store, mock := newTestContext(t, 10)

	seedUser(t, store, 1, "0xaaa", 7)

	mock.AddBalance(ledger.BalanceRecord{Address: "0xaaa", Balance: 100, UpdatedAt: 10})
	mock.AddBalance(ledger.BalanceRecord{Address: "0xdead", Balance: 999, UpdatedAt: 20})

	out, err := c.SyncBalances(ctx)
	require.NoError(t, err)

	// Only the mapped record lands; the stray address does not abort the run.
	assert.Equal(t, 1, out.Records)
	assert.Equal(t, int64(20), out.CursorAfter)
}

func TestSyncBalancesEmptyLedgerInitializesCursor(t *testing.T) {
	ctx := context.Background()
	c, store, _ := newTestContext(t, 10)

	out, err := c.SyncBalances(ctx)
	require.NoError(t, err)
	assert.Zero(t, out.Pages)

	cur, err := store.GetCursor(ctx, power.BalanceSyncCursorName)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, int64(0), cur.Value)
}

func TestInstantSyncEndToEnd(t *testing.T) {
	ctx := context.Background()
	c, store, mock := newTestContext(t, 10)

	seedUser(t, store, 1, "0xu", 7)
	mock.AddBalance(ledger.BalanceRecord{Address: "0xu", Balance: 250, UpdatedAt: 500})

	_, err := c.SyncBalances(ctx)
	require.NoError(t, err)
	_, err = c.BackfillBalances(ctx)
	require.NoError(t, err)
	require.NoError(t, c.RefreshRanking(ctx))

	entry, err := store.GetBalance(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 250.0, entry.Balance)
	assert.Equal(t, int64(500), entry.SourceUpdatedAt)

	rank, err := store.GetProjectRank(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, rank)
	assert.Equal(t, 250.0, rank.TotalPower)
	assert.Equal(t, uint64(1), rank.Rank)
}
