// Package cache provides an in-memory TTL cache with lazy eviction.
package cache

import (
	"sync"
	"time"
)

// DefaultTTL is the lifetime of an entry when none is given
const DefaultTTL = 60 * time.Minute

type entry[T any] struct {
	data      T
	timestamp time.Time
}

// Cache memoizes values for a bounded time. Expired entries are removed by the
// Get that finds them; there is no background sweep and no capacity bound.
type Cache[T any] struct {
	mutex   sync.Mutex
	entries map[string]entry[T]
	ttl     time.Duration
	now     func() time.Time
}

// New creates a cache whose entries live for ttl (DefaultTTL if ttl <= 0)
func New[T any](ttl time.Duration) *Cache[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[T]{
		entries: make(map[string]entry[T]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Set stores value under key, replacing any previous entry
func (c *Cache[T]) Set(key string, value T) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries[key] = entry[T]{data: value, timestamp: c.now()}
}

// Get returns the value stored under key if it has not expired
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var zero T
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}

	if c.now().Sub(e.timestamp) > c.ttl {
		delete(c.entries, key)
		return zero, false
	}

	return e.data, true
}

// Clear removes all entries
func (c *Cache[T]) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries = make(map[string]entry[T])
}

// Len returns the number of stored entries, expired or not
func (c *Cache[T]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}
