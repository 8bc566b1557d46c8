package executor

import (
	"sync"
	"time"
)

// cooldown suppresses re-attempting a matched pair for a time-to-live window
// after a terminal attempt. A spread that re-emerges within the window is the
// same economic opportunity, not a new one. Safe for concurrent use.
type cooldown struct {
	mu     sync.Mutex
	marked map[string]time.Time // pair key -> terminal attempt time
	ttl    time.Duration
}

func newCooldown(ttl time.Duration) *cooldown {
	return &cooldown{
		marked: make(map[string]time.Time),
		ttl:    ttl,
	}
}

// active reports whether the pair is still inside its cooldown window.
func (c *cooldown) active(pairKey string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.marked[pairKey]
	return ok && now.Sub(at) < c.ttl
}

// mark starts the pair's cooldown window.
func (c *cooldown) mark(pairKey string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.marked[pairKey] = now
}

// cleanup removes expired entries. Called periodically to bound memory.
func (c *cooldown) cleanup(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, at := range c.marked {
		if now.Sub(at) >= c.ttl {
			delete(c.marked, key)
		}
	}
}
