package cache

import (
	"context"
	"sync"
	"time"
)

// Store is the byte cache shared by the directions and geocoding lookups.
// A miss is (nil, false, nil); err is reserved for backend failures.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Memory is an in-process Store with per-entry expiry.
type Memory struct {
	mu    sync.RWMutex
	store map[string]entry
	now   func() time.Time
}

type entry struct {
	v       []byte
	expires time.Time
}

func NewMemory() *Memory {
	return &Memory{store: make(map[string]entry), now: time.Now}
}

// Get returns cached value and true if present and not expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.store[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		m.mu.Lock()
		delete(m.store, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.v, true, nil
}

// Set stores a value; ttl <= 0 keeps it until the process exits.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{v: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.store[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}
