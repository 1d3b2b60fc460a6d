// Package ledger defines the capability contracts for the external
// blockchain-indexing services this engine consumes: a balance ledger
// reporting current and updated-after token balances per wallet address,
// and a historical power ledger reporting cumulative power-second
// snapshots at arbitrary instants.
//
// Two implementations exist: an HTTP-backed client with rate limiting and
// endpoint failover, and a deterministic in-memory one for tests and local
// runs. The concrete provider is chosen by dependency injection at process
// start, never by runtime type inspection.
package ledger

import (
	"context"
)

// BalanceRecord is one wallet balance as reported by the balance ledger.
// UpdatedAt is the ledger's own notion of when the balance became true,
// in unix seconds; it is never a local write time.
type BalanceRecord struct {
	Address   string  `json:"address"`
	Balance   float64 `json:"balance"`
	UpdatedAt int64   `json:"updatedAt"`
}

// PowerSnapshot is a sparse cumulative-power snapshot from the historical
// power ledger. CumulativePowerSeconds accumulates Rate over time; between
// indexed events the rate is constant, so cumulative power at any instant t
// after SnapshotTime extrapolates linearly.
type PowerSnapshot struct {
	Rate                   float64 `json:"rate"`
	CumulativePowerSeconds float64 `json:"cumulativePowerSeconds"`
	SnapshotTime           int64   `json:"snapshotTime"`
}

// BalanceLedger reports token balances for wallet addresses.
type BalanceLedger interface {
	// BalancesUpdatedAfter returns up to pageSize balance records whose
	// ledger update instant is strictly after since, skipping pageOffset
	// pages, plus a hint that more data may exist. The ledger may return
	// multiple records sharing one timestamp, including across page
	// boundaries; callers own the tie handling.
	BalancesUpdatedAfter(ctx context.Context, since int64, pageSize, pageOffset int) ([]BalanceRecord, bool, error)

	// LatestBalances returns the current balance for each of the given
	// addresses. Addresses the ledger has no record for are simply absent
	// from the result.
	LatestBalances(ctx context.Context, addresses []string) ([]BalanceRecord, error)
}

// PowerLedger reports historical cumulative power.
type PowerLedger interface {
	// PowerSnapshotAt returns the most recent snapshot at or before the
	// given instant for the address, or (nil, nil) when no snapshot exists
	// that early.
	PowerSnapshotAt(ctx context.Context, address string, instant int64) (*PowerSnapshot, error)
}

// Client is the full ledger capability surface consumed by the sync engine.
type Client interface {
	BalanceLedger
	PowerLedger
}

// Factory produces ledger clients for a given set of endpoints.
type Factory interface {
	NewClient(endpoints []string) Client
}

type httpFactory struct {
	opts Opts
}

// NewHTTPFactory returns a factory that builds HTTP clients with shared defaults.
func NewHTTPFactory(opts Opts) Factory {
	return &httpFactory{opts: opts}
}

func (f *httpFactory) NewClient(endpoints []string) Client {
	o := f.opts
	o.Endpoints = endpoints
	return NewHTTPWithOpts(o)
}
