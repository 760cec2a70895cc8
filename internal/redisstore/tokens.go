package redisstore

import (
	"context"
	"encoding/json"
	"time"

	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/jrsteele09/go-oidc-server/token"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	kindToken = "token"
	kindGrant = "grant"
)

var _ token.Repo = (*TokenRepo)(nil)

// addToGrantScript adds a token value to its grant's set and stretches the set's
// expiry so it outlives every member.
var addToGrantScript = redis.NewScript(`
redis.call('SADD', KEYS[1], ARGV[1])
local ttl = redis.call('PTTL', KEYS[1])
if ttl < tonumber(ARGV[2]) then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// TokenRepo stores token records under their value. Each grant keeps a set of
// its token values for DeactivateGrant.
type TokenRepo struct {
	store *Store
}

func (s *Store) Tokens() *TokenRepo {
	return &TokenRepo{store: s}
}

func (r *TokenRepo) Put(ctx context.Context, t *token.Token) error {
	data, err := json.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "[TokenRepo.Put] marshal")
	}
	ttl := r.store.ttlUntil(t.ExpiresAt)
	if err := r.store.client.Set(ctx, r.store.key(kindToken, t.Value), data, ttl).Err(); err != nil {
		return errors.Wrap(err, "[TokenRepo.Put]")
	}
	if t.GrantID == "" {
		return nil
	}
	err = addToGrantScript.Run(ctx, r.store.client, []string{r.store.key(kindGrant, t.GrantID)}, t.Value, ttl.Milliseconds()).Err()
	return errors.Wrap(err, "[TokenRepo.Put] grant index")
}

func (r *TokenRepo) Get(ctx context.Context, value string) (*token.Token, error) {
	data, err := r.store.client.Get(ctx, r.store.key(kindToken, value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, oautherrors.ErrNotFound
		}
		return nil, errors.Wrap(err, "[TokenRepo.Get]")
	}
	var t token.Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, errors.Wrap(err, "[TokenRepo.Get] unmarshal")
	}
	return &t, nil
}

// Deactivate flips Active under WATCH so only one caller sees true.
func (r *TokenRepo) Deactivate(ctx context.Context, value string) (bool, error) {
	key := r.store.key(kindToken, value)
	flipped := false
	err := r.store.update(ctx, func(tx *redis.Tx) error {
		flipped = false
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return oautherrors.ErrNotFound
			}
			return err
		}
		var t token.Token
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		if !t.Active {
			return nil
		}
		t.Active = false
		updated, err := json.Marshal(&t)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		if err == nil {
			flipped = true
		}
		return err
	}, key)
	if err != nil {
		return false, errors.Wrap(err, "[TokenRepo.Deactivate]")
	}
	return flipped, nil
}

func (r *TokenRepo) DeactivateGrant(ctx context.Context, grantID string) (int, error) {
	values, err := r.store.client.SMembers(ctx, r.store.key(kindGrant, grantID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, errors.Wrap(err, "[TokenRepo.DeactivateGrant]")
	}
	n := 0
	for _, v := range values {
		flipped, err := r.Deactivate(ctx, v)
		switch {
		case errors.Is(err, oautherrors.ErrNotFound):
			// expired before the grant was revoked
		case err != nil:
			return n, err
		case flipped:
			n++
		}
	}
	return n, nil
}

// DeleteExpired is a no-op: Redis expires token keys on its own.
func (r *TokenRepo) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
