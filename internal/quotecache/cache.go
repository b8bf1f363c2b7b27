// Package quotecache provides a small TTL cache used in front of the
// upstream quote source. Market data here feeds a simulation, not
// execution: when a refresh fails the cache serves the most recent
// value it has, however old, and only errors when it has nothing.
package quotecache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type entry[T any] struct {
	val       T
	fetchedAt time.Time
}

// Cache is a keyed TTL cache over values of type T. Entries are
// immutable once written; concurrent refreshes of the same key resolve
// last-writer-wins.
type Cache[T any] struct {
	ttl time.Duration
	now func() time.Time // test hook

	mu      sync.RWMutex
	entries map[string]entry[T]

	hits   atomic.Int64
	misses atomic.Int64
	stale  atomic.Int64
}

// New creates a cache whose entries stay fresh for ttl.
func New[T any](ttl time.Duration) *Cache[T] {
	return &Cache[T]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry[T]),
	}
}

// GetOrFetch returns the cached value for key if fresh, otherwise
// calls fetch. On fetch failure it falls back to the last cached value
// for the key even if expired; the error is returned only when no
// cached value exists at all.
func (c *Cache[T]) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (T, error)) (T, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	now := c.now()
	if ok && now.Sub(e.fetchedAt) < c.ttl {
		c.hits.Add(1)
		return e.val, nil
	}
	c.misses.Add(1)

	val, err := fetch(ctx)
	if err != nil {
		if ok {
			c.stale.Add(1)
			return e.val, nil
		}
		var zero T
		return zero, fmt.Errorf("fetch %q: %w", key, err)
	}

	c.mu.Lock()
	c.entries[key] = entry[T]{val: val, fetchedAt: now}
	c.mu.Unlock()
	return val, nil
}

// Peek returns the cached value regardless of freshness.
func (c *Cache[T]) Peek(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e.val, ok
}

// Clear evicts every entry. Called at end-of-day.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry[T])
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns cumulative hit / miss / stale-served counts.
func (c *Cache[T]) Stats() (hits, misses, stale int64) {
	return c.hits.Load(), c.misses.Load(), c.stale.Load()
}

// SetNowFunc overrides the clock, for tests.
func (c *Cache[T]) SetNowFunc(now func() time.Time) { c.now = now }
