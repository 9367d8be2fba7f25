package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in a map for the life of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Key]Entry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[Key]Entry), now: time.Now}
}

// GetLookup implements Store.
func (m *MemoryStore) GetLookup(_ context.Context, key Key) (*Entry, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || e.Expired(m.now()) {
		return nil, nil
	}
	return &e, nil
}

// SetLookup implements Store.
func (m *MemoryStore) SetLookup(_ context.Context, entry Entry) error {
	m.mu.Lock()
	m.entries[entry.Key] = entry
	m.mu.Unlock()
	return nil
}

// DeleteExpiredLookups implements Store.
func (m *MemoryStore) DeleteExpiredLookups(_ context.Context) (int, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.entries {
		if e.Expired(now) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
