// ABOUTME: In-memory profile store for testing
// ABOUTME: Supports per-user failure injection to exercise lookup fallback paths

package profile

import (
	"context"
	"sync"
)

// MockStore is an in-memory Store for tests.
type MockStore struct {
	mu       sync.RWMutex
	profiles map[string]*Snapshot
	failures map[string]error
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		profiles: make(map[string]*Snapshot),
		failures: make(map[string]error),
	}
}

// Put registers a profile for userID.
func (m *MockStore) Put(userID string, snap *Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[userID] = snap
}

// FailWith makes Lookup(userID) return err.
func (m *MockStore) FailWith(userID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[userID] = err
}

// Lookup returns the registered profile, an injected failure, or ErrNotFound.
func (m *MockStore) Lookup(ctx context.Context, userID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err, ok := m.failures[userID]; ok {
		return nil, err
	}
	snap, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	s := *snap
	return &s, nil
}
