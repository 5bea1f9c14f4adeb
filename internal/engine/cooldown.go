package engine

import (
	"sync"
	"time"
)

// cooldownMap tracks the last successful entry per (venue, coin). Advisory
// and process-local.
type cooldownMap struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newCooldownMap() *cooldownMap {
	return &cooldownMap{last: make(map[string]time.Time)}
}

func cooldownKey(venue, coin string) string { return venue + ":" + coin }

// remaining returns how much cooldown is left; zero means clear to trade.
func (c *cooldownMap) remaining(venue, coin string, window time.Duration) time.Duration {
	if window <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.last[cooldownKey(venue, coin)]
	if !ok {
		return 0
	}
	if left := window - time.Since(at); left > 0 {
		return left
	}
	return 0
}

func (c *cooldownMap) stamp(venue, coin string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[cooldownKey(venue, coin)] = time.Now()
}
