package cache

import (
	"sync"
	"time"
)

type memoryEntry struct {
	data     []byte
	storedAt time.Time
	ttl      time.Duration
}

// memoryStore is the in-process fallback store used when no distributed
// backend is configured or the backend is unreachable. It shares the key
// space of the distributed store.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]memoryEntry)}
}

func (m *memoryStore) get(key string, now time.Time) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || now.Sub(e.storedAt) > e.ttl {
		return nil, false
	}
	return e.data, true
}

func (m *memoryStore) set(key string, data []byte, ttl time.Duration, now time.Time) {
	m.mu.Lock()
	m.entries[key] = memoryEntry{data: data, storedAt: now, ttl: ttl}
	// opportunistic prune to bound growth
	if len(m.entries) > 4096 {
		for k, e := range m.entries {
			if now.Sub(e.storedAt) > e.ttl {
				delete(m.entries, k)
			}
		}
	}
	m.mu.Unlock()
}

func (m *memoryStore) delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}
