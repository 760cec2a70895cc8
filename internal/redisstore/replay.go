package redisstore

import (
	"context"
	"time"

	"github.com/jrsteele09/go-oidc-server/token"
	"github.com/pkg/errors"
)

const kindJTI = "jti"

var _ token.ReplayCache = (*ReplayCache)(nil)

// ReplayCache remembers client assertion jti values with SETNX; each marker
// expires with its assertion.
type ReplayCache struct {
	store *Store
}

func (s *Store) ReplayCache() *ReplayCache {
	return &ReplayCache{store: s}
}

func (c *ReplayCache) Mark(ctx context.Context, jti string, exp time.Time) (bool, error) {
	first, err := c.store.client.SetNX(ctx, c.store.key(kindJTI, jti), "1", c.store.ttlUntil(exp)).Result()
	if err != nil {
		return false, errors.Wrap(err, "[ReplayCache.Mark]")
	}
	return first, nil
}

// Cleanup is a no-op: markers expire in Redis.
func (c *ReplayCache) Cleanup(time.Time) {}
