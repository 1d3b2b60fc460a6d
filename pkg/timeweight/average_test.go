package timeweight

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/givepower/powersyncx/pkg/ledger"
)

func TestAverage_ConstantRateIsExact(t *testing.T) {
	// Rate never changes between T0 and T1, so the average must equal the
	// rate exactly, not approximately.
	const t0, t1 = int64(1_600_000_000), int64(1_600_003_600)
	s0 := &ledger.PowerSnapshot{Rate: 10, CumulativePowerSeconds: 1000, SnapshotTime: t0}
	s1 := &ledger.PowerSnapshot{Rate: 10, CumulativePowerSeconds: 1000 + 10*float64(t1-t0), SnapshotTime: t1}

	avg, err := Average(s0, s1, t0, t1)
	require.NoError(t, err)
	assert.Equal(t, 10.0, avg)
}

func TestAverage_SparseSnapshotsExtrapolate(t *testing.T) {
	// Snapshots predate the window boundaries: cumulative power must be
	// extrapolated from each snapshot's rate to the boundary instant.
	s0 := &ledger.PowerSnapshot{Rate: 5, CumulativePowerSeconds: 100, SnapshotTime: 1000}
	s1 := &ledger.PowerSnapshot{Rate: 20, CumulativePowerSeconds: 600, SnapshotTime: 1800}

	// from=1100: c0 = 100 + 5*100 = 600
	// to=2000:   c1 = 600 + 20*200 = 4600
	// average = (4600-600)/900
	avg, err := Average(s0, s1, 1100, 2000)
	require.NoError(t, err)
	assert.InDelta(t, 4000.0/900.0, avg, 1e-12)
}

func TestAverage_InvalidWindow(t *testing.T) {
	_, err := Average(nil, nil, 200, 100)
	require.ErrorIs(t, err, ErrInvalidWindow)
}

func TestAverage_ZeroWindowReturnsInstantaneousRate(t *testing.T) {
	s1 := &ledger.PowerSnapshot{Rate: 7.5, CumulativePowerSeconds: 42, SnapshotTime: 90}

	avg, err := Average(nil, s1, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, 7.5, avg)
}

func TestAverage_ZeroWindowNoSnapshot(t *testing.T) {
	avg, err := Average(nil, nil, 100, 100)
	require.NoError(t, err)
	assert.Zero(t, avg)
}

func TestAverage_NoSnapshotBeforeWindowStart(t *testing.T) {
	// User's power first appears mid-window: the missing s0 contributes 0.
	s1 := &ledger.PowerSnapshot{Rate: 10, CumulativePowerSeconds: 500, SnapshotTime: 150}

	// to=200: c1 = 500 + 10*50 = 1000; window is 100 seconds
	avg, err := Average(nil, s1, 100, 200)
	require.NoError(t, err)
	assert.Equal(t, 10.0, avg)
}

func TestAverage_NoSnapshotsAtAll(t *testing.T) {
	avg, err := Average(nil, nil, 100, 200)
	require.NoError(t, err)
	assert.Zero(t, avg)
}

func TestAveragerAveragePower(t *testing.T) {
	mock := ledger.NewMock()
	mock.AddSnapshot("0xabc", ledger.PowerSnapshot{Rate: 10, CumulativePowerSeconds: 1000, SnapshotTime: 1000})
	mock.AddSnapshot("0xabc", ledger.PowerSnapshot{Rate: 10, CumulativePowerSeconds: 1000 + 10*500, SnapshotTime: 1500})

	a := &Averager{Ledger: mock}

	avg, err := a.AveragePower(context.Background(), "0xabc", 1000, 1500)
	require.NoError(t, err)
	assert.Equal(t, 10.0, avg)

	// Unknown address averages to zero power.
	avg, err = a.AveragePower(context.Background(), "0xnobody", 1000, 1500)
	require.NoError(t, err)
	assert.Zero(t, avg)

	_, err = a.AveragePower(context.Background(), "0xabc", 1500, 1000)
	require.ErrorIs(t, err, ErrInvalidWindow)
}
