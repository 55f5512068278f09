package stationfinder

import (
	"sync"
	"time"
)

const (
	// defaultCacheTTL is how long a cached query result stays valid.
	defaultCacheTTL = 24 * time.Hour
	// cleanupInterval is the minimum time between lazy expiry sweeps.
	cleanupInterval = time.Hour
)

type cacheEntry[T any] struct {
	created time.Time
	value   T
}

// queryCache memoizes expensive lookups keyed by a normalized representation
// of the query parameters (e.g. "city:paris"). An entry is valid while
// now - created <= ttl. Expired entries are purged lazily by cleanup, at
// most once per cleanupInterval unless forced.
//
// Empty and nil results are stored like any other value so that repeated
// failed lookups do not recompute. Safe for concurrent use; no lock is held
// across the underlying computation — a miss always flows through to the
// caller, which stores the recomputed value afterwards.
type queryCache[T any] struct {
	mu          sync.Mutex
	ttl         time.Duration
	entries     map[string]cacheEntry[T]
	lastCleanup time.Time
	now         func() time.Time
}

func newQueryCache[T any](ttl time.Duration) *queryCache[T] {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &queryCache[T]{
		ttl:         ttl,
		entries:     make(map[string]cacheEntry[T]),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// get returns the cached value for key if present and not expired.
func (c *queryCache[T]) get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	if c.now().Sub(e.created) > c.ttl {
		delete(c.entries, key)
		var zero T
		return zero, false
	}
	return e.value, true
}

// put stores value under key with the current timestamp.
func (c *queryCache[T]) put(key string, value T) {
	c.mu.Lock()
	c.entries[key] = cacheEntry[T]{created: c.now(), value: value}
	c.mu.Unlock()
}

// cleanup removes all expired entries. Unless forced, it is a no-op when
// called again within cleanupInterval of the previous sweep.
func (c *queryCache[T]) cleanup(force bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !force && now.Sub(c.lastCleanup) < cleanupInterval {
		return
	}
	for key, e := range c.entries {
		if now.Sub(e.created) > c.ttl {
			delete(c.entries, key)
		}
	}
	c.lastCleanup = now
}

// clear drops every entry.
func (c *queryCache[T]) clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry[T])
	c.mu.Unlock()
}

// removeMatching drops every entry whose key satisfies match.
func (c *queryCache[T]) removeMatching(match func(key string) bool) {
	c.mu.Lock()
	for key := range c.entries {
		if match(key) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

func (c *queryCache[T]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
