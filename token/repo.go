package token

import (
	"context"
	"time"
)

// Repo stores token records keyed by their value.
type Repo interface {
	Put(ctx context.Context, t *Token) error
	// Get returns errors.ErrNotFound for unknown values.
	Get(ctx context.Context, value string) (*Token, error)
	// Deactivate flips Active to false and reports whether this call did the flip,
	// so that two concurrent redemptions of one refresh token cannot both succeed.
	Deactivate(ctx context.Context, value string) (bool, error)
	// DeactivateGrant deactivates every token minted under grantID.
	DeactivateGrant(ctx context.Context, grantID string) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
