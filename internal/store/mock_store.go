// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*Checkpoint
	dispatches  []*DispatchRecord
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		checkpoints: make(map[string]*Checkpoint),
	}
}

// SaveCheckpoint stores a copy of cp.
func (m *MockStore) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *cp
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	m.checkpoints[c.Key] = &c
	return nil
}

// GetCheckpoint returns a copy of the checkpoint for key.
func (m *MockStore) GetCheckpoint(ctx context.Context, key string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[key]
	if !ok {
		return nil, ErrNotFound
	}
	c := *cp
	return &c, nil
}

// DeleteCheckpoint removes the checkpoint for key.
func (m *MockStore) DeleteCheckpoint(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkpoints, key)
	return nil
}

// RecordDispatch appends a copy of rec.
func (m *MockStore) RecordDispatch(ctx context.Context, rec *DispatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := *rec
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	m.dispatches = append(m.dispatches, &r)
	return nil
}

// ListDispatches returns the newest records for bot first.
func (m *MockStore) ListDispatches(ctx context.Context, bot string, limit int) ([]*DispatchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*DispatchRecord
	for _, r := range m.dispatches {
		if r.Bot == bot {
			c := *r
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
