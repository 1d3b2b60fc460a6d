package activity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/givepower/powersyncx/app/syncer/types"
	"github.com/givepower/powersyncx/pkg/db/power"
	"github.com/givepower/powersyncx/pkg/ledger"
)

func TestSyncRoundPowerComputesAndMarksSynced(t *testing.T) {
	ctx := context.Background()
	c, store, mock := newTestContext(t, 10)
	c.RoundBatchSize = 2

	seedUser(t, store, 1, "0xaaa", 7)
	seedUser(t, store, 2, "0xbbb", 7)
	seedUser(t, store, 3, "0xccc", 8)

	// Constant rate per user from epoch, so the window average equals the rate.
	mock.AddSnapshot("0xaaa", ledger.PowerSnapshot{Rate: 10, CumulativePowerSeconds: 0, SnapshotTime: 0})
	mock.AddSnapshot("0xbbb", ledger.PowerSnapshot{Rate: 20, CumulativePowerSeconds: 0, SnapshotTime: 0})
	mock.AddSnapshot("0xccc", ledger.PowerSnapshot{Rate: 5, CumulativePowerSeconds: 0, SnapshotTime: 0})

	require.NoError(t, store.InsertRoundSnapshot(ctx, power.RoundSnapshot{
		Round: 5, BlockNumber: 1234, SnapshotTime: 1000,
	}))

	out, err := c.SyncRoundPower(ctx, &types.ActivitySyncRoundInput{Round: 5, SnapshotTime: 1000})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Users)
	assert.Zero(t, out.Skipped)

	for id, want := range map[uint64]float64{1: 10, 2: 20, 3: 5} {
		rec, err := store.GetRoundPower(ctx, id, 5)
		require.NoError(t, err)
		require.NotNil(t, rec, "user %d missing round power", id)
		assert.Equal(t, want, rec.AveragePower)
	}

	unsynced, err := store.ListUnsyncedSnapshots(ctx)
	require.NoError(t, err)
	assert.Empty(t, unsynced)
}

func TestSyncRoundPowerSkipsExistingRecords(t *testing.T) {
	ctx := context.Background()
	c, store, mock := newTestContext(t, 10)

	seedUser(t, store, 1, "0xaaa", 7)
	mock.AddSnapshot("0xaaa", ledger.PowerSnapshot{Rate: 10, CumulativePowerSeconds: 0, SnapshotTime: 0})

	require.NoError(t, store.InsertRoundSnapshot(ctx, power.RoundSnapshot{Round: 5, SnapshotTime: 1000}))

	// A record left behind by a previous partial run stands.
	require.NoError(t, store.UpsertRoundPower(ctx, []power.RoundPowerRecord{
		{UserID: 1, Round: 5, AveragePower: 42},
	}))

	out, err := c.SyncRoundPower(ctx, &types.ActivitySyncRoundInput{Round: 5, SnapshotTime: 1000})
	require.NoError(t, err)
	assert.Zero(t, out.Users)
	assert.Equal(t, 1, out.Skipped)

	rec, err := store.GetRoundPower(ctx, 1, 5)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 42.0, rec.AveragePower)
}

// failingPowerLedger wraps the mock and fails power lookups for one address.
type failingPowerLedger struct {
	*ledger.MockClient
	failAddr string
}

func (f *failingPowerLedger) PowerSnapshotAt(ctx context.Context, address string, instant int64) (*ledger.PowerSnapshot, error) {
	if address == f.failAddr {
		return nil, errors.New("ledger unavailable")
	}
	return f.MockClient.PowerSnapshotAt(ctx, address, instant)
}

type staticFactory struct{ c ledger.Client }

func (f staticFactory) NewClient([]string) ledger.Client { return f.c }

func TestSyncRoundPowerPartialFailureLeavesRoundUnsynced(t *testing.T) {
	ctx := context.Background()
	c, store, mock := newTestContext(t, 10)
	c.LedgerFactory = staticFactory{c: &failingPowerLedger{MockClient: mock, failAddr: "0xbbb"}}

	seedUser(t, store, 1, "0xaaa", 7)
	seedUser(t, store, 2, "0xbbb", 7)
	mock.AddSnapshot("0xaaa", ledger.PowerSnapshot{Rate: 10, CumulativePowerSeconds: 0, SnapshotTime: 0})

	require.NoError(t, store.InsertRoundSnapshot(ctx, power.RoundSnapshot{Round: 5, SnapshotTime: 1000}))

	_, err := c.SyncRoundPower(ctx, &types.ActivitySyncRoundInput{Round: 5, SnapshotTime: 1000})
	require.Error(t, err)

	// The round must stay unsynced so the next sweep retries it in full.
	unsynced, err := store.ListUnsyncedSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, uint64(5), unsynced[0].Round)
}

func TestRoundSyncNeverRevisitsSyncedRounds(t *testing.T) {
	ctx := context.Background()
	c, store, mock := newTestContext(t, 10)

	seedUser(t, store, 1, "0xaaa", 7)
	mock.AddSnapshot("0xaaa", ledger.PowerSnapshot{Rate: 10, CumulativePowerSeconds: 0, SnapshotTime: 0})

	require.NoError(t, store.InsertRoundSnapshot(ctx, power.RoundSnapshot{Round: 5, SnapshotTime: 1000}))
	_, err := c.SyncRoundPower(ctx, &types.ActivitySyncRoundInput{Round: 5, SnapshotTime: 1000})
	require.NoError(t, err)

	// The sweep enumerates unsynced rounds only, so round 5 is now invisible
	// to it and its records cannot be modified again.
	out, err := c.ListUnsyncedRounds(ctx)
	require.NoError(t, err)
	assert.Empty(t, out.Rounds)
}

func TestListUnsyncedRoundsOldestFirst(t *testing.T) {
	ctx := context.Background()
	c, store, _ := newTestContext(t, 10)

	for _, round := range []uint64{9, 3, 6} {
		require.NoError(t, store.InsertRoundSnapshot(ctx, power.RoundSnapshot{
			Round: round, SnapshotTime: int64(round * 100),
		}))
	}

	out, err := c.ListUnsyncedRounds(ctx)
	require.NoError(t, err)
	require.Len(t, out.Rounds, 3)
	assert.Equal(t, uint64(3), out.Rounds[0].Round)
	assert.Equal(t, uint64(6), out.Rounds[1].Round)
	assert.Equal(t, uint64(9), out.Rounds[2].Round)
}
