package cache

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value   []byte
	expires time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// Memory is a process-local Store. Writes are idempotent, so the mutex only
// protects the map from concurrent HTTP handlers.
type Memory struct {
	mu    sync.RWMutex
	items map[string]memEntry
	now   func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]memEntry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	now := m.now()
	if !e.expired(now) {
		return e.value, true, nil
	}

	// Re-check under the write lock; a Set may have landed since RUnlock.
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok = m.items[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(now) {
		delete(m.items, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
