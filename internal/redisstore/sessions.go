package redisstore

import (
	"context"
	"encoding/json"
	"time"

	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/jrsteele09/go-oidc-server/sessions"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	kindSession = "session"
	kindSid     = "sid"
)

var _ sessions.Repo = (*SessionRepo)(nil)

// SessionRepo stores sessions under their cookie value with a sid index key
// that expires together with the session.
type SessionRepo struct {
	store *Store
}

func (s *Store) Sessions() *SessionRepo {
	return &SessionRepo{store: s}
}

func (r *SessionRepo) Create(ctx context.Context, session *sessions.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.Create] marshal")
	}
	ttl := r.store.ttlUntil(session.ExpiresAt)
	created, err := r.store.client.SetNX(ctx, r.store.key(kindSession, session.ID), data, ttl).Result()
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.Create]")
	}
	if !created {
		return oautherrors.ErrAlreadyExists
	}
	if session.Sid != "" {
		if err := r.store.client.Set(ctx, r.store.key(kindSid, session.Sid), session.ID, ttl).Err(); err != nil {
			return errors.Wrap(err, "[SessionRepo.Create] sid index")
		}
	}
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, id string) (*sessions.Session, error) {
	if id == "" {
		return nil, oautherrors.ErrNotFound
	}
	data, err := r.store.client.Get(ctx, r.store.key(kindSession, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, oautherrors.ErrNotFound
		}
		return nil, errors.Wrap(err, "[SessionRepo.Get]")
	}
	return decodeSession(data)
}

func (r *SessionRepo) GetBySid(ctx context.Context, sid string) (*sessions.Session, error) {
	id, err := r.store.client.Get(ctx, r.store.key(kindSid, sid)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, oautherrors.ErrNotFound
		}
		return nil, errors.Wrap(err, "[SessionRepo.GetBySid]")
	}
	return r.Get(ctx, id)
}

// Update applies fn under WATCH and rewrites the session, re-deriving the key
// expiry from the possibly extended ExpiresAt.
func (r *SessionRepo) Update(ctx context.Context, id string, fn func(*sessions.Session) error) (*sessions.Session, error) {
	key := r.store.key(kindSession, id)
	var result *sessions.Session
	err := r.store.update(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return oautherrors.ErrNotFound
			}
			return err
		}
		s, err := decodeSession(data)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		updated, err := json.Marshal(s)
		if err != nil {
			return err
		}
		ttl := r.store.ttlUntil(s.ExpiresAt)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, ttl)
			if s.Sid != "" {
				pipe.Set(ctx, r.store.key(kindSid, s.Sid), s.ID, ttl)
			}
			return nil
		})
		if err == nil {
			result = s
		}
		return err
	}, key)
	if err != nil {
		return nil, errors.Wrap(err, "[SessionRepo.Update]")
	}
	return result, nil
}

// DeleteExpired is a no-op: session keys carry their own expiry.
func (r *SessionRepo) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

func decodeSession(data []byte) (*sessions.Session, error) {
	var s sessions.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "decoding session")
	}
	return &s, nil
}
