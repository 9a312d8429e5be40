package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestGetPut(t *testing.T) {
	c := New[string](4, time.Minute)

	if _, ok := c.Get("a"); ok {
		t.Fatal("empty cache should miss")
	}
	c.Put("a", "alpha")
	v, ok := c.Get("a")
	if !ok || v != "alpha" {
		t.Fatalf("Get(a) = %q, %v", v, ok)
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("stats = %d hits, %d misses", hits, misses)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New[int](4, 5*time.Millisecond)
	c.Put("k", 42)
	time.Sleep(10 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expired entry must not be served")
	}
}

func TestLRUEviction(t *testing.T) {
	c := New[int](3, time.Minute)
	for i := 0; i < 3; i++ {
		c.Put(fmt.Sprintf("k%d", i), i)
	}
	c.Get("k0") // refresh k0; k1 becomes the eviction candidate
	c.Put("k3", 3)

	if _, ok := c.Get("k1"); ok {
		t.Error("k1 should have been evicted")
	}
	for _, key := range []string{"k0", "k2", "k3"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("%s should still be cached", key)
		}
	}
}

func TestInvalidateAndPurge(t *testing.T) {
	c := New[int](4, time.Minute)
	c.Put("a", 1)
	c.Put("b", 2)

	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Error("invalidated entry must miss")
	}

	c.Purge()
	if _, ok := c.Get("b"); ok {
		t.Error("purged entry must miss")
	}
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *Cache[int]
	c.Put("a", 1)
	if _, ok := c.Get("a"); ok {
		t.Error("nil cache must miss")
	}
	c.Invalidate("a")
	c.Purge()
}

func TestPutUpdatesExisting(t *testing.T) {
	c := New[int](2, time.Minute)
	c.Put("a", 1)
	c.Put("a", 2)
	if v, _ := c.Get("a"); v != 2 {
		t.Errorf("Get(a) = %d, want 2", v)
	}
}
