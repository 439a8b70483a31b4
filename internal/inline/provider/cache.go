package provider

import (
	"sync"
	"time"
)

// Cache is a TTL cache with an optional size bound.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	items   map[K]*cacheItem[V]
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

type cacheItem[V any] struct {
	value     V
	expiresAt time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	maxSize int
	now     func() time.Time
}

// WithMaxSize bounds the number of entries. Zero means unbounded.
func WithMaxSize(n int) CacheOption {
	return func(o *cacheOptions) {
		o.maxSize = n
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(o *cacheOptions) {
		o.now = now
	}
}

// NewCache creates a cache whose entries live for ttl.
func NewCache[K comparable, V any](ttl time.Duration, opts ...CacheOption) *Cache[K, V] {
	o := cacheOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[K, V]{
		items:   make(map[K]*cacheItem[V]),
		ttl:     ttl,
		maxSize: o.maxSize,
		now:     o.now,
	}
}

// Get returns a live entry.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}

	if c.now().After(item.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.items[key]; ok && cur == item {
			delete(c.items, key)
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}

	return item.value, true
}

// Set stores a value.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.maxSize > 0 && len(c.items) >= c.maxSize {
		c.evictOldest()
	}

	c.items[key] = &cacheItem[V]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Delete removes a value.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Clear removes all values.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	c.items = make(map[K]*cacheItem[V])
	c.mu.Unlock()
}

// Size returns the number of entries, including expired ones.
func (c *Cache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// evictOldest removes the entry that expires first (must hold lock).
func (c *Cache[K, V]) evictOldest() {
	var oldestKey K
	var oldest time.Time
	first := true

	for key, item := range c.items {
		if first || item.expiresAt.Before(oldest) {
			oldestKey = key
			oldest = item.expiresAt
			first = false
		}
	}

	if !first {
		delete(c.items, oldestKey)
	}
}
