package sessions

import (
	"context"
	"time"
)

// Repo stores sessions. Lookups return errors.ErrNotFound for unknown sessions.
type Repo interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	GetBySid(ctx context.Context, sid string) (*Session, error)
	// Update applies fn to the stored session with no concurrent writer in
	// between and stores the result. An error from fn aborts the update.
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
