// Package timeweight computes a user's average power over a time window
// from sparse cumulative-power snapshots. The math is pure; network access
// lives entirely in the Averager wrapper so the core is unit-testable with
// injected snapshot values.
package timeweight

import (
	"context"
	"errors"
	"fmt"

	"github.com/givepower/powersyncx/pkg/ledger"
)

// ErrInvalidWindow is returned when the window end precedes its start.
// This is a programming-contract violation, never retried.
var ErrInvalidWindow = errors.New("invalid window: to precedes from")

// cumulativeAt extrapolates cumulative power-seconds at instant t from
// snapshot s, assuming the instantaneous rate held constant since the
// snapshot (true between indexed events). A nil snapshot contributes zero:
// the user had no recorded power before that point.
func cumulativeAt(s *ledger.PowerSnapshot, t int64) float64 {
	if s == nil {
		return 0
	}
	return s.CumulativePowerSeconds + s.Rate*float64(t-s.SnapshotTime)
}

// Average computes the average power over [from, to) given the most recent
// snapshot at-or-before from (s0) and at-or-before to (s1). Instants are
// unix seconds. A zero-length window returns s1's instantaneous rate, or 0
// when no snapshot exists at or before that instant.
func Average(s0, s1 *ledger.PowerSnapshot, from, to int64) (float64, error) {
	if to < from {
		return 0, fmt.Errorf("%w: from=%d to=%d", ErrInvalidWindow, from, to)
	}
	if to == from {
		if s1 == nil {
			return 0, nil
		}
		return s1.Rate, nil
	}
	return (cumulativeAt(s1, to) - cumulativeAt(s0, from)) / float64(to-from), nil
}

// Averager resolves the two snapshot lookups against a power ledger and
// applies Average.
type Averager struct {
	Ledger ledger.PowerLedger
}

// AveragePower returns the address's time-weighted average power over
// [from, to).
func (a *Averager) AveragePower(ctx context.Context, address string, from, to int64) (float64, error) {
	if to < from {
		return 0, fmt.Errorf("%w: from=%d to=%d", ErrInvalidWindow, from, to)
	}

	s1, err := a.Ledger.PowerSnapshotAt(ctx, address, to)
	if err != nil {
		return 0, fmt.Errorf("snapshot at window end: %w", err)
	}

	if to == from {
		return Average(nil, s1, from, to)
	}

	s0, err := a.Ledger.PowerSnapshotAt(ctx, address, from)
	if err != nil {
		return 0, fmt.Errorf("snapshot at window start: %w", err)
	}

	return Average(s0, s1, from, to)
}
