// Package cache provides a small in-process TTL cache used for expensive
// recomputations (portfolio weight and value sums, bought quantities).
// Entries expire by time only; there is no invalidation on write. Readers
// tolerate staleness up to the configured TTL.
package cache

import (
	"sync"
	"time"
)

// Cache is the interface injected into the services that cache derived
// values. Tests substitute an instance with a controllable clock.
type Cache interface {
	// Get returns the value stored under key, or (nil, false) when the key
	// is absent or its entry has expired.
	Get(key string) (interface{}, bool)

	// Set stores value under key for ttl. A non-positive ttl stores nothing.
	Set(key string, value interface{}, ttl time.Duration)

	// Delete removes the entry for key, if any.
	Delete(key string)
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Memory is a concurrency-safe in-memory Cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// NewMemoryWithClock creates a cache with an injected clock for tests.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     now,
	}
}

// Get returns the cached value if present and not expired.
// Expired entries are removed lazily on access.
func (m *Memory) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		// Re-check under the write lock; another goroutine may have
		// replaced the entry in the meantime.
		if cur, ok := m.entries[key]; ok && !m.now().Before(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores value under key until now+ttl.
func (m *Memory) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.mu.Lock()
	m.entries[key] = entry{value: value, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
}

// Delete removes the entry for key.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Sweep removes all expired entries and returns how many were dropped.
// Called periodically by the cleanup job; correctness does not depend on
// it since Get checks expiry itself.
func (m *Memory) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	dropped := 0
	for key, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, key)
			dropped++
		}
	}
	return dropped
}
