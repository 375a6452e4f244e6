// ABOUTME: Thread-safe generic TTL cache with size-bounded eviction.
// ABOUTME: Backs message dedupe, guild role caching, and room membership caching.

package ttlcache

import (
	"container/list"
	"sync"
	"time"
)

// defaultSweepInterval bounds how long expired entries linger in memory.
const defaultSweepInterval = time.Minute

// entry stores the value, write time and list element for a cached key.
type entry[K comparable, V any] struct {
	value   V
	written time.Time
	element *list.Element
}

// Cache maps keys to values that expire after a fixed TTL.
// Uses a doubly-linked list to maintain write order for O(1) eviction.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	items   map[K]*entry[K, V]
	order   *list.List // keys in write order (oldest at front)
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// Option customizes a Cache.
type Option func(*options)

type options struct {
	now   func() time.Time
	sweep time.Duration
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSweepInterval sets how often expired entries are removed.
// Zero or negative disables the background sweep.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) { o.sweep = d }
}

// New creates a cache with the given TTL and maximum size. A maxSize of zero
// or less means unbounded.
func New[K comparable, V any](ttl time.Duration, maxSize int, opts ...Option) *Cache[K, V] {
	o := options{now: time.Now, sweep: defaultSweepInterval}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Cache[K, V]{
		items:   make(map[K]*entry[K, V]),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     o.now,
		done:    make(chan struct{}),
	}
	if o.sweep > 0 {
		go c.sweep(o.sweep)
	}
	return c
}

// Get returns the value for key if present and not expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok || c.expired(e) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, refreshing its write time. If the cache is at
// capacity, the oldest entry is evicted to make room.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

// SetIfAbsent atomically stores value unless a live entry exists.
// Returns true if key was already present (and nothing was written).
// This prevents TOCTOU races between separate Get/Set calls.
func (c *Cache[K, V]) SetIfAbsent(key K, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok && !c.expired(e) {
		return true
	}
	c.setLocked(key, value)
	return false
}

// Delete removes key. Unknown keys are ignored.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		c.order.Remove(e.element)
		delete(c.items, key)
	}
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// setLocked is the internal set implementation. Must be called with mu held.
func (c *Cache[K, V]) setLocked(key K, value V) {
	now := c.now()

	if e, exists := c.items[key]; exists {
		e.value = value
		e.written = now
		c.order.MoveToBack(e.element)
		return
	}

	if c.maxSize > 0 && len(c.items) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.items[key] = &entry[K, V]{
		value:   value,
		written: now,
		element: elem,
	}
}

func (c *Cache[K, V]) expired(e *entry[K, V]) bool {
	return c.now().Sub(e.written) >= c.ttl
}

// evictOldest removes the oldest entry from the cache.
// Must be called with mu held.
func (c *Cache[K, V]) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(K)
	c.order.Remove(front)
	delete(c.items, key)
}

// sweep runs in a background goroutine, periodically removing expired entries.
func (c *Cache[K, V]) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

// removeExpired removes all expired entries from the cache.
func (c *Cache[K, V]) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.items {
		if c.expired(e) {
			c.order.Remove(e.element)
			delete(c.items, key)
		}
	}
}

// Close stops the background sweep goroutine. It is safe to call multiple times.
func (c *Cache[K, V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
