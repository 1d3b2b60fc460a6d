package power

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemStore is an in-memory Store used by tests and by local runs without a
// ClickHouse instance. It mirrors the replacing-upsert semantics of the real
// store: balance writes keep the entry with the greatest source timestamp,
// and the ranking is rebuilt as a whole and swapped in under the lock.
type MemStore struct {
	mu sync.RWMutex

	users       map[uint64]User
	allocations map[uint64]map[uint64]float64 // userID -> projectID -> percentage
	balances    map[uint64]BalanceCacheEntry
	cursors     map[string]Cursor
	rounds      map[uint64]RoundSnapshot
	roundPower  map[uint64]map[uint64]RoundPowerRecord // round -> userID -> record
	ranking     []ProjectRank
	syncRuns    []SyncRun
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		users:       make(map[uint64]User),
		allocations: make(map[uint64]map[uint64]float64),
		balances:    make(map[uint64]BalanceCacheEntry),
		cursors:     make(map[string]Cursor),
		rounds:      make(map[uint64]RoundSnapshot),
		roundPower:  make(map[uint64]map[uint64]RoundPowerRecord),
	}
}

func (m *MemStore) Close() error                   { return nil }
func (m *MemStore) DatabaseName() string           { return "memory" }
func (m *MemStore) Ping(ctx context.Context) error { return nil }

func (m *MemStore) UpsertUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := *u
	user.WalletAddress = strings.ToLower(user.WalletAddress)
	m.users[user.ID] = user
	return nil
}

func (m *MemStore) UpsertAllocation(ctx context.Context, alloc *Allocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byProject, ok := m.allocations[alloc.UserID]
	if !ok {
		byProject = make(map[uint64]float64)
		m.allocations[alloc.UserID] = byProject
	}
	byProject[alloc.ProjectID] = alloc.Percentage
	return nil
}

func (m *MemStore) UsersByWallets(ctx context.Context, wallets []string) (map[string]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[string]struct{}, len(wallets))
	for _, w := range wallets {
		wanted[strings.ToLower(w)] = struct{}{}
	}

	out := make(map[string]uint64)
	for _, u := range m.users {
		if !m.hasAllocationLocked(u.ID) {
			continue
		}
		if _, ok := wanted[u.WalletAddress]; ok {
			out[u.WalletAddress] = u.ID
		}
	}
	return out, nil
}

func (m *MemStore) UsersWithAllocations(ctx context.Context, limit, offset int) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return paginateUsers(m.eligibleUsersLocked(), limit, offset), nil
}

func (m *MemStore) UsersMissingBalance(ctx context.Context, limit, offset int) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var missing []User
	for _, u := range m.eligibleUsersLocked() {
		if _, ok := m.balances[u.ID]; !ok {
			missing = append(missing, u)
		}
	}
	return paginateUsers(missing, limit, offset), nil
}

func (m *MemStore) eligibleUsersLocked() []User {
	var out []User
	for _, u := range m.users {
		if m.hasAllocationLocked(u.ID) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemStore) hasAllocationLocked(userID uint64) bool {
	for _, pct := range m.allocations[userID] {
		if pct > 0 {
			return true
		}
	}
	return false
}

func paginateUsers(users []User, limit, offset int) []User {
	if offset >= len(users) {
		return nil
	}
	users = users[offset:]
	if limit > 0 && limit < len(users) {
		users = users[:limit]
	}
	return users
}

func (m *MemStore) UpsertBalances(ctx context.Context, entries []BalanceCacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if prev, ok := m.balances[e.UserID]; ok && prev.SourceUpdatedAt > e.SourceUpdatedAt {
			continue
		}
		m.balances[e.UserID] = e
	}
	return nil
}

func (m *MemStore) GetBalance(ctx context.Context, userID uint64) (*BalanceCacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.balances[userID]; ok {
		return &e, nil
	}
	return nil, nil
}

func (m *MemStore) GetCursor(ctx context.Context, name string) (*Cursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.cursors[name]; ok {
		return &c, nil
	}
	return nil, nil
}

func (m *MemStore) AdvanceCursor(ctx context.Context, name string, value int64, expectedVersion uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.cursors[name]
	if ok && current.Version != expectedVersion {
		return fmt.Errorf("cursor %s version %d: %w", name, expectedVersion+1, ErrCursorConflict)
	}
	if !ok && expectedVersion != 0 {
		return fmt.Errorf("cursor %s version %d: %w", name, expectedVersion+1, ErrCursorConflict)
	}
	m.cursors[name] = Cursor{Name: name, Value: value, Version: expectedVersion + 1}
	return nil
}

func (m *MemStore) InsertRoundSnapshot(ctx context.Context, snap RoundSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[snap.Round] = snap
	return nil
}

func (m *MemStore) ListRounds(ctx context.Context, limit int) ([]RoundSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]RoundSnapshot, 0, len(m.rounds))
	for _, s := range m.rounds {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Round > out[j].Round })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) ListUnsyncedSnapshots(ctx context.Context) ([]RoundSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []RoundSnapshot
	for _, s := range m.rounds {
		if !s.Synced {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Round < out[j].Round })
	return out, nil
}

func (m *MemStore) MarkRoundSynced(ctx context.Context, round uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rounds[round]
	if !ok {
		return fmt.Errorf("mark round %d synced: unknown round", round)
	}
	s.Synced = true
	m.rounds[round] = s
	return nil
}

func (m *MemStore) UpsertRoundPower(ctx context.Context, records []RoundPowerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		byUser, ok := m.roundPower[r.Round]
		if !ok {
			byUser = make(map[uint64]RoundPowerRecord)
			m.roundPower[r.Round] = byUser
		}
		byUser[r.UserID] = r
	}
	return nil
}

func (m *MemStore) GetRoundPower(ctx context.Context, userID, round uint64) (*RoundPowerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.roundPower[round][userID]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *MemStore) RefreshRanking(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	totals := make(map[uint64]float64)
	for userID, byProject := range m.allocations {
		balance := m.balances[userID].Balance // zero when uncached
		for projectID, pct := range byProject {
			if pct <= 0 {
				continue
			}
			totals[projectID] += balance * pct / 100
		}
	}

	ranking := make([]ProjectRank, 0, len(totals))
	for projectID, total := range totals {
		ranking = append(ranking, ProjectRank{ProjectID: projectID, TotalPower: total})
	}
	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].TotalPower != ranking[j].TotalPower {
			return ranking[i].TotalPower > ranking[j].TotalPower
		}
		return ranking[i].ProjectID < ranking[j].ProjectID
	})
	for i := range ranking {
		ranking[i].Rank = uint64(i + 1)
	}
	m.ranking = ranking
	return nil
}

func (m *MemStore) GetRanking(ctx context.Context) ([]ProjectRank, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ProjectRank, len(m.ranking))
	copy(out, m.ranking)
	return out, nil
}

func (m *MemStore) GetProjectRank(ctx context.Context, projectID uint64) (*ProjectRank, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.ranking {
		if r.ProjectID == projectID {
			return &r, nil
		}
	}
	return nil, nil
}

func (m *MemStore) RecordSyncRun(ctx context.Context, run SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncRuns = append(m.syncRuns, run)
	return nil
}

func (m *MemStore) ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]SyncRun, len(m.syncRuns))
	copy(out, m.syncRuns)
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
