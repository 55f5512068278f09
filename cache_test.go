package stationfinder

import (
	"testing"
	"time"
)

// fakeClock drives a queryCache deterministically.
type fakeClock struct {
	current time.Time
}

func (f *fakeClock) now() time.Time          { return f.current }
func (f *fakeClock) advance(d time.Duration) { f.current = f.current.Add(d) }

func newFakeCache[T any](ttl time.Duration) (*queryCache[T], *fakeClock) {
	clock := &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	c := newQueryCache[T](ttl)
	c.now = clock.now
	c.lastCleanup = clock.current
	return c, clock
}

func TestCacheGetPut(t *testing.T) {
	c, clock := newFakeCache[string](time.Second)

	if _, ok := c.get("k"); ok {
		t.Fatal("get on empty cache returned a value")
	}

	c.put("k", "v")
	if v, ok := c.get("k"); !ok || v != "v" {
		t.Fatalf("get(k) = %q, %v; want v, true", v, ok)
	}

	clock.advance(500 * time.Millisecond)
	if _, ok := c.get("k"); !ok {
		t.Fatal("entry expired before its TTL")
	}

	clock.advance(600 * time.Millisecond)
	if _, ok := c.get("k"); ok {
		t.Fatal("entry still valid after its TTL")
	}
}

func TestCacheStoresNilResults(t *testing.T) {
	c, _ := newFakeCache[*Station](time.Minute)
	c.put("miss", nil)
	v, ok := c.get("miss")
	if !ok {
		t.Fatal("cached nil result not returned")
	}
	if v != nil {
		t.Fatalf("cached nil result = %v", v)
	}
}

func TestCacheCleanupThrottled(t *testing.T) {
	c, clock := newFakeCache[int](time.Second)
	c.put("k", 1)

	// Expired, but within the hourly window: cleanup must be a no-op.
	clock.advance(2 * time.Second)
	c.cleanup(false)
	if c.len() != 1 {
		t.Fatalf("throttled cleanup removed entries: len = %d", c.len())
	}

	// Forced cleanup ignores the window.
	c.cleanup(true)
	if c.len() != 0 {
		t.Fatalf("forced cleanup left entries: len = %d", c.len())
	}
}

func TestCacheCleanupAfterInterval(t *testing.T) {
	c, clock := newFakeCache[int](time.Second)
	c.put("dead", 1)
	clock.advance(cleanupInterval + time.Second)
	c.put("alive", 2)

	c.cleanup(false)
	if _, ok := c.entries["dead"]; ok {
		t.Fatal("expired entry survived an unforced cleanup past the interval")
	}
	if _, ok := c.entries["alive"]; !ok {
		t.Fatal("fresh entry removed by cleanup")
	}

	// The sweep just ran; the next unforced one inside the window is a no-op.
	c.put("dead2", 3)
	clock.advance(2 * time.Second)
	c.cleanup(false)
	if _, ok := c.entries["dead2"]; !ok {
		t.Fatal("cleanup ran again within the throttle window")
	}
}

func TestCacheRemoveMatching(t *testing.T) {
	c, _ := newFakeCache[int](time.Minute)
	c.put("city:paris", 1)
	c.put("city:lyon", 2)
	c.put("search:paris:10", 3)

	c.removeMatching(func(key string) bool { return key == "city:paris" })
	if _, ok := c.get("city:paris"); ok {
		t.Fatal("removeMatching left the matching key")
	}
	if _, ok := c.get("city:lyon"); !ok {
		t.Fatal("removeMatching dropped a non-matching key")
	}

	c.clear()
	if c.len() != 0 {
		t.Fatalf("clear left %d entries", c.len())
	}
}
