package cache

import (
	"sync"
	"time"
)

type entry struct {
	value     interface{}
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Cache is an in-process TTL cache. It backs the conversation resolver
// cache, the creation and deletion locks, and profile picture memoization.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func New() *Cache {
	return &Cache{
		entries: make(map[string]*entry),
	}
}

// Get returns the value for key, or false when absent or expired.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		c.Delete(key)
		return nil, false
	}
	return e.value, true
}

// GetString is Get for string values.
func (c *Cache) GetString(key string) (string, bool) {
	v, ok := c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt is Get for int values.
func (c *Cache) GetInt(key string) (int, bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	i, ok := v.(int)
	return i, ok
}

// Set stores value under key for ttl. A zero ttl stores without expiry.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	e := &entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// SetNX stores value only when key is absent or expired. Returns true when
// the caller won the slot. This is the primitive behind the resolver and
// deletion locks.
func (c *Cache) SetNX(key string, value interface{}, ttl time.Duration) bool {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok && !existing.expired(now) {
		return false
	}

	e := &entry{value: value}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	c.entries[key] = e
	return true
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// DeletePrefix removes every key with the given prefix and returns how many
// were dropped.
func (c *Cache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep drops expired entries and returns how many were removed. Called
// periodically by the janitor.
func (c *Cache) Sweep() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}
