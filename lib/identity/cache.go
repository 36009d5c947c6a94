// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"sync"
	"time"

	"github.com/evannetwork/smartagent/lib/clock"
)

// CacheConfig bounds a Cache.
type CacheConfig struct {
	// TTL is how long an entry stays valid. Zero keeps entries until
	// they are evicted for space.
	TTL time.Duration

	// MaxEntries caps the entry count. When full, storing a new key
	// evicts the entry closest to expiry. Zero means unbounded.
	MaxEntries int

	Clock clock.Clock
}

type cacheEntry[V any] struct {
	value   V
	expires time.Time
}

// Cache is a mutex-guarded map with expiry and a size bound.
type Cache[K comparable, V any] struct {
	ttl        time.Duration
	maxEntries int
	clock      clock.Clock

	mutex   sync.Mutex
	entries map[K]cacheEntry[V]
}

func NewCache[K comparable, V any](config CacheConfig) *Cache[K, V] {
	cacheClock := config.Clock
	if cacheClock == nil {
		cacheClock = clock.Real()
	}
	return &Cache[K, V]{
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
		clock:      cacheClock,
		entries:    make(map[K]cacheEntry[V]),
	}
}

// Lookup returns the live value for key. Expired entries are removed
// and reported as misses.
func (c *Cache[K, V]) Lookup(key K) (V, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.expiredLocked(entry, c.clock.Now()) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Store sets key to value with a fresh TTL.
func (c *Cache[K, V]) Store(key K, value V) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.clock.Now()
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.cleanupLocked(now)
		if len(c.entries) >= c.maxEntries {
			c.evictOldestLocked()
		}
	}

	entry := cacheEntry[V]{value: value}
	if c.ttl > 0 {
		entry.expires = now.Add(c.ttl)
	}
	c.entries[key] = entry
}

// Len returns the number of stored entries, including expired ones not
// yet cleaned up.
func (c *Cache[K, V]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}

// Cleanup removes expired entries and returns how many it removed.
func (c *Cache[K, V]) Cleanup() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.cleanupLocked(c.clock.Now())
}

func (c *Cache[K, V]) expiredLocked(entry cacheEntry[V], now time.Time) bool {
	return c.ttl > 0 && !now.Before(entry.expires)
}

func (c *Cache[K, V]) cleanupLocked(now time.Time) int {
	removed := 0
	for key, entry := range c.entries {
		if c.expiredLocked(entry, now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// evictOldestLocked drops the entry closest to expiry. Without a TTL
// every entry has the same zero expiry and an arbitrary one goes.
func (c *Cache[K, V]) evictOldestLocked() {
	var oldestKey K
	var oldest time.Time
	found := false
	for key, entry := range c.entries {
		if !found || entry.expires.Before(oldest) {
			oldestKey, oldest, found = key, entry.expires, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}
