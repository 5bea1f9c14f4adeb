// Package cache provides a sharded mark-price cache keyed by venue and pair.
// The websocket feed writes, engines read; a TTL keeps REST fallbacks honest.
package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// PriceCache is a sharded price cache with per-entry age tracking.
type PriceCache struct {
	shards [numShards]*priceShard
	ttl    time.Duration
}

type priceShard struct {
	mu    sync.RWMutex
	items map[string]priceEntry
}

type priceEntry struct {
	price     float64
	updatedAt time.Time
}

// New creates a price cache. Entries older than ttl are reported stale;
// ttl <= 0 disables staleness checks.
func New(ttl time.Duration) *PriceCache {
	c := &PriceCache{ttl: ttl}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &priceShard{items: make(map[string]priceEntry)}
	}
	return c
}

// Key builds the cache key for a venue-native pair.
func Key(venue, pair string) string {
	return venue + ":" + pair
}

func (c *PriceCache) getShard(key string) *priceShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

// Set stores a price.
func (c *PriceCache) Set(key string, price float64) {
	shard := c.getShard(key)
	shard.mu.Lock()
	shard.items[key] = priceEntry{price: price, updatedAt: time.Now()}
	shard.mu.Unlock()
}

// Get retrieves a fresh price. Stale entries report !ok.
func (c *PriceCache) Get(key string) (float64, bool) {
	price, age, ok := c.GetWithAge(key)
	if !ok {
		return 0, false
	}
	if c.ttl > 0 && age > c.ttl {
		return 0, false
	}
	return price, true
}

// GetWithAge retrieves a price and its age regardless of TTL.
func (c *PriceCache) GetWithAge(key string) (float64, time.Duration, bool) {
	shard := c.getShard(key)
	shard.mu.RLock()
	entry, ok := shard.items[key]
	shard.mu.RUnlock()
	if !ok {
		return 0, 0, false
	}
	return entry.price, time.Since(entry.updatedAt), true
}

// Delete removes a key.
func (c *PriceCache) Delete(key string) {
	shard := c.getShard(key)
	shard.mu.Lock()
	delete(shard.items, key)
	shard.mu.Unlock()
}

// Len returns total items across all shards.
func (c *PriceCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.items)
		shard.mu.RUnlock()
	}
	return total
}

// Cleanup removes entries older than maxAge and returns how many went.
func (c *PriceCache) Cleanup(maxAge time.Duration) int {
	removed := 0
	cutoff := time.Now().Add(-maxAge)

	for _, shard := range c.shards {
		shard.mu.Lock()
		for key, entry := range shard.items {
			if entry.updatedAt.Before(cutoff) {
				delete(shard.items, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// Snapshot returns all cached prices (admin/debug endpoints).
func (c *PriceCache) Snapshot() map[string]float64 {
	result := make(map[string]float64)
	for _, shard := range c.shards {
		shard.mu.RLock()
		for key, entry := range shard.items {
			result[key] = entry.price
		}
		shard.mu.RUnlock()
	}
	return result
}
