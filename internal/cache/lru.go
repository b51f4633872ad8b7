// Package cache provides the bounded, expiring cache used to keep decoded
// model bundles in memory between registry lookups.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LoadFunc produces the value for a key on a cache miss.
type LoadFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// LRU is a size-bounded cache whose entries optionally expire after ttl.
// A ttl of zero disables expiry.
type LRU[K comparable, V any] struct {
	cache *lru.Cache[K, entry[V]]
	ttl   time.Duration
	now   func() time.Time

	// loadMu serializes loads so concurrent misses on the same key decode once.
	loadMu sync.Mutex

	hits    atomic.Uint64
	misses  atomic.Uint64
	evicted atomic.Uint64
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// New creates a cache holding at most size entries.
func New[K comparable, V any](size int, ttl time.Duration) (*LRU[K, V], error) {
	inner, err := lru.New[K, entry[V]](size)
	if err != nil {
		return nil, err
	}
	return &LRU[K, V]{cache: inner, ttl: ttl, now: time.Now}, nil
}

func (c *LRU[K, V]) expired(e entry[V]) bool {
	return c.ttl > 0 && c.now().After(e.expiresAt)
}

// Get returns the value for key if present and not expired.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	e, ok := c.cache.Get(key)
	if !ok || c.expired(e) {
		if ok {
			c.cache.Remove(key)
		}
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Set stores value under key, evicting the least recently used entry when full.
func (c *LRU[K, V]) Set(key K, value V) {
	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}
	if c.cache.Add(key, entry[V]{value: value, expiresAt: expiresAt}) {
		c.evicted.Add(1)
	}
}

// GetOrLoad returns the cached value for key, calling load on a miss and
// caching its result. Load errors are returned and never cached.
func (c *LRU[K, V]) GetOrLoad(ctx context.Context, key K, load LoadFunc[K, V]) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	// Another caller may have filled it while we waited.
	if e, ok := c.cache.Peek(key); ok && !c.expired(e) {
		return e.value, nil
	}

	v, err := load(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, v)
	return v, nil
}

// Delete removes key.
func (c *LRU[K, V]) Delete(key K) {
	c.cache.Remove(key)
}

// Len returns the number of entries, expired ones included until touched.
func (c *LRU[K, V]) Len() int {
	return c.cache.Len()
}

// Purge drops every entry.
func (c *LRU[K, V]) Purge() {
	c.cache.Purge()
}

// Stats is a snapshot of cache effectiveness.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Evicted uint64  `json:"evicted"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns current counters.
func (c *LRU[K, V]) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	rate := 0.0
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Hits:    hits,
		Misses:  misses,
		Evicted: c.evicted.Load(),
		Size:    c.cache.Len(),
		HitRate: rate,
	}
}

// CleanupExpired removes expired entries and returns how many were dropped.
// It walks every key.
func (c *LRU[K, V]) CleanupExpired() int {
	if c.ttl == 0 {
		return 0
	}
	removed := 0
	for _, key := range c.cache.Keys() {
		if e, ok := c.cache.Peek(key); ok && c.expired(e) {
			c.cache.Remove(key)
			removed++
		}
	}
	return removed
}
