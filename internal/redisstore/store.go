// Package redisstore keeps tokens, sessions, authorization codes, pending
// login requests and assertion replay markers in Redis so several server
// instances can share them. Records are JSON values that expire with the
// record itself, so the periodic DeleteExpired calls have nothing to do.
package redisstore

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultKeyPrefix namespaces every key written by the stores.
	DefaultKeyPrefix = "oidc:"

	defaultConnectTimeout = 30 * time.Second
	maxTxRetries          = 10
)

// Store owns the Redis client shared by the individual repositories.
type Store struct {
	client  redis.UniversalClient
	prefix  string
	nowFunc func() time.Time
}

type StoreOption func(*Store)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *Store) {
		s.prefix = prefix
	}
}

func WithNowFunc(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowFunc = now
	}
}

// New wraps an existing client. Tests use it with miniredis.
func New(client redis.UniversalClient, options ...StoreOption) *Store {
	s := &Store{
		client:  client,
		prefix:  DefaultKeyPrefix,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Connect parses a redis:// URL and pings the server, retrying with exponential
// backoff until it answers or connectTimeout passes.
func Connect(ctx context.Context, rawURL string, connectTimeout time.Duration, options ...StoreOption) (*Store, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "[redisstore.Connect] parsing url")
	}
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	client := redis.NewClient(opts)

	_, err = backoff.Retry(ctx, func() (string, error) {
		return client.Ping(ctx).Result()
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(connectTimeout),
		backoff.WithNotify(func(err error, d time.Duration) {
			log.Warn().Err(err).Str("addr", opts.Addr).Dur("retry_in", d).Msg("redis not reachable yet")
		}),
	)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "[redisstore.Connect] %s", opts.Addr)
	}
	log.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("connected to redis")
	return New(client, options...), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) key(kind, id string) string {
	return s.prefix + kind + ":" + id
}

// ttlUntil is the remaining lifetime of a record expiring at exp. Redis
// rejects zero expirations, so records already past exp live one millisecond.
func (s *Store) ttlUntil(exp time.Time) time.Duration {
	if d := exp.Sub(s.nowFunc()); d > time.Millisecond {
		return d
	}
	return time.Millisecond
}

// update runs fn inside an optimistic WATCH/MULTI transaction on keys,
// retrying when another writer touched them first.
func (s *Store) update(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return errors.Errorf("transaction on %v kept conflicting", keys)
}
