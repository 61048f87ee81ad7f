package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxEntries bounds a Memory created by NewMemory.
const DefaultMaxEntries = 10_000

// sweepEvery is how many Sets pass between sweeps of expired entries.
const sweepEvery = 1_000

type entry struct {
	val     []byte
	expires time.Time
}

// Memory is an in-process Cache holding at most maxEntries values.
//
// Expired entries are dropped when read and by a sweep that runs every
// sweepEvery Sets, or sooner when the map is full. A full map with nothing
// expired gives up the entry closest to expiry.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]entry
	maxEntries int
	sets       int
	now        func() time.Time
}

func NewMemory() *Memory {
	return NewMemorySize(DefaultMaxEntries)
}

// NewMemorySize returns a Memory bounded to maxEntries. A non-positive
// size means DefaultMaxEntries.
func NewMemorySize(maxEntries int) *Memory {
	if maxEntries < 1 {
		maxEntries = DefaultMaxEntries
	}
	return &Memory{entries: make(map[string]entry), maxEntries: maxEntries, now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.val, true, nil
}

// Set stores a copy of val. A non-positive ttl is a no-op.
func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	buf := make([]byte, len(val))
	copy(buf, val)

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	m.sets++
	_, replacing := m.entries[key]
	if m.sets >= sweepEvery || (!replacing && len(m.entries) >= m.maxEntries) {
		m.sets = 0
		m.sweep(now, key)
	}
	m.entries[key] = entry{val: buf, expires: now.Add(ttl)}
	return nil
}

// sweep deletes expired entries. If the map is still full and key is new,
// it also deletes the live entry that expires first. Callers hold m.mu.
func (m *Memory) sweep(now time.Time, key string) {
	var (
		soonest    string
		soonestExp time.Time
	)
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
			continue
		}
		if soonest == "" || e.expires.Before(soonestExp) {
			soonest, soonestExp = k, e.expires
		}
	}
	if _, ok := m.entries[key]; !ok && len(m.entries) >= m.maxEntries {
		delete(m.entries, soonest)
	}
}

// Len reports the number of stored entries, including any not yet evicted.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
