package cache

import (
	"context"
	"sync"
	"time"
)

// Cache provides in-memory caching with TTL and request collapsing (singleflight).
type Cache[V any] struct {
	mu       sync.RWMutex
	entries  map[string]*cacheEntry[V]
	ttl      time.Duration
	inflight map[string]*inflightRequest[V]
	done     chan struct{}
	now      func() time.Time
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

type inflightRequest[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// New creates a new Cache with the specified TTL.
func New[V any](ttl time.Duration) *Cache[V] {
	c := &Cache[V]{
		entries:  make(map[string]*cacheEntry[V]),
		ttl:      ttl,
		inflight: make(map[string]*inflightRequest[V]),
		done:     make(chan struct{}),
		now:      time.Now,
	}

	go c.cleanup()

	return c
}

// Close stops the background cleanup goroutine.
func (c *Cache[V]) Close() {
	close(c.done)
}

// GetOrFetch retrieves from cache or executes the fetch function.
// Concurrent requests for the same key are collapsed; only successful fetches
// are stored. Returns the value and whether it was a cache hit.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key string, fetch func() (V, error)) (V, bool, error) {
	c.mu.Lock()

	if entry, ok := c.entries[key]; ok && c.now().Before(entry.expiresAt) {
		c.mu.Unlock()
		return entry.value, true, nil
	}

	if inflight, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-inflight.done:
			return inflight.value, false, inflight.err
		case <-ctx.Done():
			var zero V
			return zero, false, context.Cause(ctx)
		}
	}

	inflight := &inflightRequest[V]{done: make(chan struct{})}
	c.inflight[key] = inflight
	c.mu.Unlock()

	value, err := fetch()

	c.mu.Lock()
	inflight.value = value
	inflight.err = err
	if err == nil {
		c.entries[key] = &cacheEntry[V]{
			value:     value,
			expiresAt: c.now().Add(c.ttl),
		}
	}
	delete(c.inflight, key)
	c.mu.Unlock()

	close(inflight.done)

	return value, false, err
}

// cleanup periodically removes expired entries.
func (c *Cache[V]) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := c.now()
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		case <-c.done:
			return
		}
	}
}
