// Package cache provides a small TTL-bounded LRU used to memoize folder
// listings: path resolution walks the tree level by level, so repeated
// operations on nearby paths would otherwise refetch the same listings.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a thread-safe LRU with per-entry expiry. The zero value is not
// usable; construct with New. A nil *Cache is valid and caches nothing.
type Cache[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*entry[V]
	order    *list.List // front = most recently used

	hits   uint64
	misses uint64
}

type entry[V any] struct {
	key      string
	value    V
	storedAt time.Time
	element  *list.Element
}

// New creates a cache holding up to capacity entries, each valid for ttl.
func New[V any](capacity int, ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*entry[V], capacity),
		order:    list.New(),
	}
}

// Get returns the cached value for key, if present and fresh.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	if time.Since(e.storedAt) > c.ttl {
		c.remove(e)
		c.misses++
		return zero, false
	}

	c.order.MoveToFront(e.element)
	c.hits++
	return e.value, true
}

// Put stores value under key, evicting the least recently used entry when
// full.
func (c *Cache[V]) Put(key string, value V) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		e.value = value
		e.storedAt = time.Now()
		c.order.MoveToFront(e.element)
		return
	}

	for len(c.items) >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.remove(oldest.Value.(*entry[V]))
	}

	e := &entry[V]{key: key, value: value, storedAt: time.Now()}
	e.element = c.order.PushFront(e)
	c.items[key] = e
}

// Invalidate drops one entry.
func (c *Cache[V]) Invalidate(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		c.remove(e)
	}
}

// Purge drops everything. Mutating operations call this rather than
// tracking which listings a write touched.
func (c *Cache[V]) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*entry[V], c.capacity)
	c.order.Init()
}

// Stats returns lifetime hit and miss counts.
func (c *Cache[V]) Stats() (hits, misses uint64) {
	if c == nil {
		return 0, 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *Cache[V]) remove(e *entry[V]) {
	c.order.Remove(e.element)
	delete(c.items, e.key)
}
