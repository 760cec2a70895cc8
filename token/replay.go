package token

import (
	"context"
	"sync"
	"time"
)

// ReplayCache remembers client assertion jti values until they expire.
type ReplayCache interface {
	// Mark records jti and reports true only the first time it is seen.
	Mark(ctx context.Context, jti string, exp time.Time) (bool, error)
	Cleanup(now time.Time)
}

// InMemoryReplayCache is a map-backed ReplayCache.
type InMemoryReplayCache struct {
	seen map[string]time.Time
	mu   sync.Mutex
	now  func() time.Time
}

func NewInMemoryReplayCache() *InMemoryReplayCache {
	return &InMemoryReplayCache{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (c *InMemoryReplayCache) Mark(_ context.Context, jti string, exp time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, exists := c.seen[jti]; exists && c.now().Before(prev) {
		return false, nil
	}
	c.seen[jti] = exp
	return true, nil
}

func (c *InMemoryReplayCache) Cleanup(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for jti, exp := range c.seen {
		if now.After(exp) {
			delete(c.seen, jti)
		}
	}
}
