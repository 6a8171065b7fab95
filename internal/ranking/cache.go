package ranking

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ModelSource hands the scorer the model to use for one call.
type ModelSource interface {
	Current(ctx context.Context) (*Model, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// DefaultCacheTTL bounds how long an artifact replaced by another process can
// go unnoticed.
const DefaultCacheTTL = 30 * time.Second

// CachedSource serves the model from memory and reloads it from the store once
// the TTL has elapsed. A TTL of zero reloads on every call. "No model" is cached
// like any other result; load errors are not.
type CachedSource struct {
	store ModelStore
	clock Clock
	ttl   time.Duration

	mu       sync.RWMutex
	loaded   bool
	cached   *Model
	loadedAt time.Time
}

func NewCachedSource(store ModelStore, ttl time.Duration) *CachedSource {
	return NewCachedSourceWithClock(store, realClock{}, ttl)
}

// NewCachedSourceWithClock creates a CachedSource with a custom clock (for testing).
func NewCachedSourceWithClock(store ModelStore, clock Clock, ttl time.Duration) *CachedSource {
	return &CachedSource{store: store, clock: clock, ttl: ttl}
}

func (c *CachedSource) fresh() bool {
	return c.loaded && c.ttl > 0 && c.clock.Now().Before(c.loadedAt.Add(c.ttl))
}

func (c *CachedSource) Current(ctx context.Context) (*Model, error) {
	c.mu.RLock()
	if c.fresh() {
		m := c.cached
		c.mu.RUnlock()
		return m, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fresh() {
		return c.cached, nil
	}

	m, err := c.store.Load(ctx)
	if err != nil {
		c.loaded = false
		c.cached = nil
		return nil, fmt.Errorf("loading model: %w", err)
	}
	c.cached = m
	c.loaded = true
	c.loadedAt = c.clock.Now()
	return m, nil
}

// Invalidate drops the cached model so the next call reloads it.
func (c *CachedSource) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.cached = nil
	c.mu.Unlock()
}
