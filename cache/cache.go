// Package cache holds rendered DNG buffers in a bounded LRU keyed by
// synthetic entry identity. Concurrent misses for the same key are
// coalesced onto a single producer, and recent production failures are
// remembered briefly so retrying readers do not stampede the decoder.
package cache

import (
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
	"golang.org/x/sync/singleflight"
)

// ErrCoolingDown is returned while a key sits in the failure cooldown
// window after a failed production.
var ErrCoolingDown = errors.New("cache: entry failed recently, cooling down")

// Defaults applied when a bound is zero.
const (
	DefaultMaxBytes   = 1 << 30 // 1 GiB
	DefaultMaxEntries = 64
	DefaultCooldown   = 5 * time.Second
)

// Cache is a byte- and count-bounded LRU of immutable buffers.
type Cache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU
	bytes    int64
	maxBytes int64
	maxItems int

	failed   map[string]time.Time
	cooldown time.Duration

	group singleflight.Group

	// now is swappable for tests.
	now func() time.Time
}

// New builds a cache; zero bounds pick the defaults.
func New(maxBytes int64, maxEntries int, cooldown time.Duration) *Cache {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	c := &Cache{
		maxBytes: maxBytes,
		maxItems: maxEntries,
		failed:   make(map[string]time.Time),
		cooldown: cooldown,
		now:      time.Now,
	}

	lru, _ := simplelru.NewLRU(maxEntries, func(_, value interface{}) {
		c.bytes -= int64(len(value.([]byte)))
	})
	c.lru = lru

	return c
}

// Get returns the cached buffer for key, touching its recency.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Put publishes an immutable buffer for key and clears any failure mark.
// Buffers larger than the byte bound are not retained.
func (c *Cache) Put(key string, buf []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.failed, key)

	if int64(len(buf)) > c.maxBytes {
		c.lru.Remove(key)
		return
	}

	if v, ok := c.lru.Peek(key); ok {
		c.bytes -= int64(len(v.([]byte)))
	}
	c.lru.Add(key, buf)
	c.bytes += int64(len(buf))

	for c.bytes > c.maxBytes && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}
}

// MarkFailed records a production failure so immediate retries are
// refused until the cooldown passes.
func (c *Cache) MarkFailed(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed[key] = c.now()
}

// coolingDown reports whether key is inside its failure window.
func (c *Cache) coolingDown(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	at, ok := c.failed[key]
	if !ok {
		return false
	}
	if c.now().Sub(at) > c.cooldown {
		delete(c.failed, key)
		return false
	}
	return true
}

// Clear drops every entry and failure mark.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Purge()
	c.bytes = 0
	c.failed = make(map[string]time.Time)
}

// Bytes returns the current resident size.
func (c *Cache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// GetOrProduce returns the cached buffer for key or runs produce exactly
// once across all concurrent callers. The produced buffer is published
// before any waiter observes it; a failure is recorded for the cooldown
// window and every waiter of that flight receives the error.
func (c *Cache) GetOrProduce(key string, produce func() ([]byte, error)) ([]byte, error) {
	if buf, ok := c.Get(key); ok {
		return buf, nil
	}
	if c.coolingDown(key) {
		return nil, ErrCoolingDown
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if buf, ok := c.Get(key); ok {
			return buf, nil
		}

		buf, err := produce()
		if err != nil {
			c.MarkFailed(key)
			return nil, err
		}

		c.Put(key, buf)
		return buf, nil
	})
	if err != nil {
		return nil, err
	}

	return v.([]byte), nil
}
