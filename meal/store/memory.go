// Package store provides Store implementations.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dinehall/meal-engine/meal"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	users   map[string]meal.User
	records map[recordKey]meal.Record
}

type recordKey struct {
	UserID string
	Day    string
}

func NewMemory() *Memory {
	return &Memory{
		users:   make(map[string]meal.User),
		records: make(map[recordKey]meal.Record),
	}
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) SaveUser(_ context.Context, u meal.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	m.users[u.ID] = u
	return nil
}

func (m *Memory) GetUser(_ context.Context, userID string) (*meal.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]meal.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]meal.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *Memory) ApplyBalanceDelta(_ context.Context, userID string, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return meal.ErrUserNotFound
	}
	u.Balance = u.Balance.Add(delta)
	m.users[userID] = u
	return nil
}

func (m *Memory) SetTotalMealCount(_ context.Context, userID string, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return meal.ErrUserNotFound
	}
	u.TotalMealCount = total
	m.users[userID] = u
	return nil
}

// =============================================================================
// RECORDS
// =============================================================================

func (m *Memory) GetRecord(_ context.Context, userID string, day meal.Day) (*meal.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[recordKey{UserID: userID, Day: day.String()}]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Memory) LatestRecordBefore(_ context.Context, userID string, day meal.Day) (*meal.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *meal.Record
	for _, r := range m.records {
		if r.UserID != userID || !r.Day.Before(day) {
			continue
		}
		if latest == nil || r.Day.After(latest.Day) {
			rc := r
			latest = &rc
		}
	}
	return latest, nil
}

func (m *Memory) ListRecordsByDay(_ context.Context, day meal.Day) ([]meal.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []meal.Record
	for _, r := range m.records {
		if r.Day.Equal(day) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) ListRecordsByUser(_ context.Context, userID string) ([]meal.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []meal.Record
	for _, r := range m.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) ListRecordsInRange(_ context.Context, from, to meal.Day) ([]meal.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []meal.Record
	for _, r := range m.records {
		if !r.Day.Before(from) && !r.Day.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

// =============================================================================
// ATOMIC MUTATION
// =============================================================================

func (m *Memory) ApplyChange(_ context.Context, ch meal.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyLocked(ch)
}

// ApplyChangeBatch applies all changes or none, via snapshot + rollback.
func (m *Memory) ApplyChangeBatch(_ context.Context, chs []meal.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshotLocked()
	for _, ch := range chs {
		if err := m.applyLocked(ch); err != nil {
			m.restoreLocked(snapshot)
			return err
		}
	}
	return nil
}

func (m *Memory) applyLocked(ch meal.Change) error {
	rec := ch.Record
	k := recordKey{UserID: rec.UserID, Day: rec.Day.String()}

	u, ok := m.users[rec.UserID]
	if !ok {
		return meal.ErrUserNotFound
	}

	existing, exists := m.records[k]
	if rec.Version == 0 {
		if exists {
			return meal.ErrDuplicateRecord
		}
	} else {
		if !exists || existing.Version != rec.Version {
			return meal.ErrConcurrentModification
		}
	}

	rec.Version++
	m.records[k] = rec

	u.TotalMealCount += ch.Delta
	m.users[rec.UserID] = u
	return nil
}

type memorySnapshot struct {
	users   map[string]meal.User
	records map[recordKey]meal.Record
}

func (m *Memory) snapshotLocked() memorySnapshot {
	users := make(map[string]meal.User, len(m.users))
	for k, v := range m.users {
		users[k] = v
	}
	records := make(map[recordKey]meal.Record, len(m.records))
	for k, v := range m.records {
		records[k] = v
	}
	return memorySnapshot{users: users, records: records}
}

func (m *Memory) restoreLocked(s memorySnapshot) {
	m.users = s.users
	m.records = s.records
}
