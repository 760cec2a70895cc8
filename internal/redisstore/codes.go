package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jrsteele09/go-oidc-server/auth"
	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	kindCode     = "code"
	kindConsumed = "code-used"
	kindRequest  = "authreq"
)

var (
	_ auth.CodeRepo    = (*CodeRepo)(nil)
	_ auth.RequestRepo = (*RequestRepo)(nil)
)

// consumeCodeScript returns {first, record}. The tombstone key is set with
// SETNX so exactly one caller sees first == 1; it expires with the code.
var consumeCodeScript = redis.NewScript(`
local record = redis.call('GET', KEYS[1])
if not record then
	return false
end
local first = redis.call('SETNX', KEYS[2], '1')
if first == 1 then
	local ttl = redis.call('PTTL', KEYS[1])
	if ttl > 0 then
		redis.call('PEXPIRE', KEYS[2], ttl)
	end
end
return {first, record}
`)

// CodeRepo stores authorization codes. Consumed codes stay readable until they
// expire so a replay can be detected.
type CodeRepo struct {
	store *Store
}

func (s *Store) Codes() *CodeRepo {
	return &CodeRepo{store: s}
}

func (r *CodeRepo) Put(ctx context.Context, code *auth.AuthorizationCode) error {
	data, err := json.Marshal(code)
	if err != nil {
		return errors.Wrap(err, "[CodeRepo.Put] marshal")
	}
	created, err := r.store.client.SetNX(ctx, r.store.key(kindCode, code.Code), data, r.store.ttlUntil(code.ExpiresAt)).Result()
	if err != nil {
		return errors.Wrap(err, "[CodeRepo.Put]")
	}
	if !created {
		return oautherrors.ErrAlreadyExists
	}
	return nil
}

func (r *CodeRepo) Consume(ctx context.Context, code string) (*auth.AuthorizationCode, error) {
	keys := []string{r.store.key(kindCode, code), r.store.key(kindConsumed, code)}
	res, err := consumeCodeScript.Run(ctx, r.store.client, keys).Slice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, oautherrors.ErrNotFound
		}
		return nil, errors.Wrap(err, "[CodeRepo.Consume]")
	}
	if len(res) != 2 {
		return nil, errors.Errorf("[CodeRepo.Consume] unexpected script reply %v", res)
	}
	first, _ := res[0].(int64)
	record, _ := res[1].(string)

	var c auth.AuthorizationCode
	if err := json.Unmarshal([]byte(record), &c); err != nil {
		return nil, errors.Wrap(err, "[CodeRepo.Consume] unmarshal")
	}
	if first != 1 {
		return &c, oautherrors.ErrCodeConsumed
	}
	return &c, nil
}

// DeleteExpired is a no-op: codes and tombstones expire in Redis.
func (r *CodeRepo) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

// RequestRepo parks authorization requests during the login hand-off so any
// instance can resume them.
type RequestRepo struct {
	store *Store
}

func (s *Store) Requests() *RequestRepo {
	return &RequestRepo{store: s}
}

func (r *RequestRepo) Put(ctx context.Context, req *auth.PendingRequest) error {
	if req == nil || req.ID == "" {
		return errors.New("[RequestRepo.Put] request id cannot be empty")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "[RequestRepo.Put] marshal")
	}
	err = r.store.client.Set(ctx, r.store.key(kindRequest, req.ID), data, r.store.ttlUntil(req.ExpiresAt)).Err()
	return errors.Wrap(err, "[RequestRepo.Put]")
}

func (r *RequestRepo) Get(ctx context.Context, id string) (*auth.PendingRequest, error) {
	data, err := r.store.client.Get(ctx, r.store.key(kindRequest, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, oautherrors.ErrNotFound
		}
		return nil, errors.Wrap(err, "[RequestRepo.Get]")
	}
	var req auth.PendingRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, errors.Wrap(err, "[RequestRepo.Get] unmarshal")
	}
	return &req, nil
}

func (r *RequestRepo) Delete(ctx context.Context, id string) error {
	return errors.Wrap(r.store.client.Del(ctx, r.store.key(kindRequest, id)).Err(), "[RequestRepo.Delete]")
}
