package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock is a manually advanced clock for TTL tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func TestMemory_GetSet(t *testing.T) {
	clock := newFakeClock()
	c := NewMemoryWithClock(clock.Now)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("answer", 42, time.Minute)
	v, ok := c.Get("answer")
	assert.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestMemory_Expiry(t *testing.T) {
	clock := newFakeClock()
	c := NewMemoryWithClock(clock.Now)

	c.Set("short", "value", 5*time.Second)

	clock.Advance(4 * time.Second)
	_, ok := c.Get("short")
	assert.True(t, ok, "entry should still be fresh before TTL")

	clock.Advance(2 * time.Second)
	_, ok = c.Get("short")
	assert.False(t, ok, "entry should expire after TTL")
}

func TestMemory_ExpiryBoundary(t *testing.T) {
	clock := newFakeClock()
	c := NewMemoryWithClock(clock.Now)

	c.Set("k", 1, 10*time.Second)
	clock.Advance(10 * time.Second)

	// Exactly at expires_at the entry is no longer fresh.
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestMemory_SetOverwrites(t *testing.T) {
	clock := newFakeClock()
	c := NewMemoryWithClock(clock.Now)

	c.Set("k", "old", time.Second)
	c.Set("k", "new", time.Minute)

	clock.Advance(30 * time.Second)
	v, ok := c.Get("k")
	assert.True(t, ok, "overwrite should extend the TTL")
	assert.Equal(t, "new", v)
}

func TestMemory_NonPositiveTTLStoresNothing(t *testing.T) {
	clock := newFakeClock()
	c := NewMemoryWithClock(clock.Now)

	c.Set("k", 1, 0)
	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Set("k", 1, -time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestMemory_Delete(t *testing.T) {
	clock := newFakeClock()
	c := NewMemoryWithClock(clock.Now)

	c.Set("k", 1, time.Minute)
	c.Delete("k")
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestMemory_Sweep(t *testing.T) {
	clock := newFakeClock()
	c := NewMemoryWithClock(clock.Now)

	c.Set("fresh", 1, time.Hour)
	c.Set("stale1", 1, time.Second)
	c.Set("stale2", 1, 2*time.Second)

	clock.Advance(time.Minute)

	assert.Equal(t, 2, c.Sweep())
	_, ok := c.Get("fresh")
	assert.True(t, ok)
}
