// Package cache provides the bounded TTL LRU used for pickers, health
// checkers, and resolved addresses (spec §4.5), built on
// hashicorp/golang-lru/v2/expirable the same way the teacher's
// TwoTierTemplateCache layers an in-memory LRU in front of a slower
// backing build (internal/infrastructure/template/cache.go).
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Disposer is called when an entry is evicted, either by TTL expiry, LRU
// pressure, or an explicit version bump replacing it. Pickers and
// checkers use this to release any held resources (e.g. stop an active
// probe goroutine).
type Disposer func(value any)

type entry[V any] struct {
	version uint64
	value   V
}

// VersionedCache wraps an expirable LRU with a version-tagged
// lookup-or-build contract: GetOrBuild returns the cached value only if
// it was built for the requested version; otherwise it invokes factory,
// disposes of the stale entry (if any), and caches the fresh result.
type VersionedCache[K comparable, V any] struct {
	mu      sync.Mutex
	lru     *lru.LRU[K, *entry[V]]
	dispose Disposer

	// OnHit and OnMiss, set by a caller that wants cache-hit-ratio
	// instrumentation (pkg/metrics.CacheMetrics), are invoked after every
	// GetOrBuild lookup. Both may be left nil.
	OnHit  func()
	OnMiss func()
}

// New creates a VersionedCache with the given capacity and TTL. dispose
// may be nil if entries need no teardown.
func New[K comparable, V any](capacity int, ttl time.Duration, dispose Disposer) *VersionedCache[K, V] {
	c := &VersionedCache[K, V]{dispose: dispose}
	c.lru = lru.NewLRU[K, *entry[V]](capacity, func(_ K, e *entry[V]) {
		if c.dispose != nil {
			c.dispose(e.value)
		}
	}, ttl)
	return c
}

// GetOrBuild returns the value cached for key iff it was built for
// version; otherwise it calls factory, replaces (and disposes of) any
// stale entry, and caches the new one.
func (c *VersionedCache[K, V]) GetOrBuild(key K, version uint64, factory func() (V, error)) (V, error) {
	c.mu.Lock()
	if e, ok := c.lru.Get(key); ok && e.version == version {
		v := e.value
		c.mu.Unlock()
		if c.OnHit != nil {
			c.OnHit()
		}
		return v, nil
	}
	c.mu.Unlock()

	if c.OnMiss != nil {
		c.OnMiss()
	}

	v, err := factory()
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	// Add on an existing key replaces the value without the evict
	// callback, so a stale-version entry is removed first to dispose it.
	if old, ok := c.lru.Peek(key); ok && old.version != version {
		c.lru.Remove(key)
	}
	c.lru.Add(key, &entry[V]{version: version, value: v})
	c.mu.Unlock()

	return v, nil
}

// Peek returns the cached value for key without affecting recency or
// checking its version, for read-only introspection (admin surface).
func (c *VersionedCache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Peek(key)
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Remove evicts key, running the disposer if one is configured.
func (c *VersionedCache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Len returns the current number of cached entries.
func (c *VersionedCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
