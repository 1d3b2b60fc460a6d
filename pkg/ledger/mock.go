package ledger

import (
	"context"
	"sort"
	"sync"
)

// MockClient is a deterministic in-memory ledger used by tests and by the
// "mock" provider mode. Balance history is a flat list of records ordered
// by (UpdatedAt, Address); updated-after pages are sliced from it exactly
// the way the real ledger slices its index, so timestamp ties across page
// boundaries reproduce faithfully.
type MockClient struct {
	mu        sync.Mutex
	history   []BalanceRecord
	latest    map[string]BalanceRecord
	snapshots map[string][]PowerSnapshot // per address, ascending SnapshotTime

	// Calls counts BalancesUpdatedAfter invocations, for test assertions.
	Calls int
}

// NewMock returns an empty mock ledger.
func NewMock() *MockClient {
	return &MockClient{
		latest:    make(map[string]BalanceRecord),
		snapshots: make(map[string][]PowerSnapshot),
	}
}

// MockFactory returns a Factory whose NewClient always yields the given mock,
// regardless of endpoints. Used when LEDGER_PROVIDER=mock.
func MockFactory(m *MockClient) Factory {
	return mockFactory{m: m}
}

type mockFactory struct{ m *MockClient }

func (f mockFactory) NewClient([]string) Client { return f.m }

// AddBalance appends a balance-change record to the history and updates the
// latest-balance view for the address.
func (m *MockClient) AddBalance(rec BalanceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, rec)
	sort.SliceStable(m.history, func(i, j int) bool {
		if m.history[i].UpdatedAt != m.history[j].UpdatedAt {
			return m.history[i].UpdatedAt < m.history[j].UpdatedAt
		}
		return m.history[i].Address < m.history[j].Address
	})
	cur, ok := m.latest[rec.Address]
	if !ok || rec.UpdatedAt >= cur.UpdatedAt {
		m.latest[rec.Address] = rec
	}
}

// SetLatestOnly records a latest balance without a history entry, for
// exercising the gap-backfill path (the delta feed never reported it).
func (m *MockClient) SetLatestOnly(rec BalanceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[rec.Address] = rec
}

// AddSnapshot registers a power snapshot for an address.
func (m *MockClient) AddSnapshot(address string, s PowerSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[address] = append(m.snapshots[address], s)
	sort.Slice(m.snapshots[address], func(i, j int) bool {
		return m.snapshots[address][i].SnapshotTime < m.snapshots[address][j].SnapshotTime
	})
}

// BalancesUpdatedAfter implements BalanceLedger.
func (m *MockClient) BalancesUpdatedAfter(_ context.Context, since int64, pageSize, pageOffset int) ([]BalanceRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++

	var matched []BalanceRecord
	for _, rec := range m.history {
		if rec.UpdatedAt > since {
			matched = append(matched, rec)
		}
	}

	start := pageOffset * pageSize
	if start >= len(matched) {
		return nil, false, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	page := make([]BalanceRecord, end-start)
	copy(page, matched[start:end])
	return page, end < len(matched), nil
}

// LatestBalances implements BalanceLedger.
func (m *MockClient) LatestBalances(_ context.Context, addresses []string) ([]BalanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]BalanceRecord, 0, len(addresses))
	for _, addr := range addresses {
		if rec, ok := m.latest[addr]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// PowerSnapshotAt implements PowerLedger.
func (m *MockClient) PowerSnapshotAt(_ context.Context, address string, instant int64) (*PowerSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found *PowerSnapshot
	for i := range m.snapshots[address] {
		s := m.snapshots[address][i]
		if s.SnapshotTime <= instant {
			cp := s
			found = &cp
		} else {
			break
		}
	}
	return found, nil
}
