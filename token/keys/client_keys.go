package keys

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/pkg/errors"
)

const (
	defaultRemoteKeyTTL = 10 * time.Minute
	maxJWKSBytes        = 1 << 20
)

// ParseJWKS decodes an inline "jwks" registration value.
func ParseJWKS(raw []byte) (*jose.JSONWebKeySet, error) {
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, errors.Wrap(err, "invalid JWKS")
	}
	if len(set.Keys) == 0 {
		return nil, errors.New("JWKS contains no keys")
	}
	return &set, nil
}

type cachedKeySet struct {
	set     *jose.JSONWebKeySet
	fetched time.Time
}

// RemoteKeySets fetches and caches client key sets published at a jwks_uri.
type RemoteKeySets struct {
	client  *http.Client
	ttl     time.Duration
	nowFunc func() time.Time

	mu    sync.Mutex
	cache map[string]cachedKeySet
}

type RemoteKeySetsOption func(*RemoteKeySets)

func WithHTTPClient(c *http.Client) RemoteKeySetsOption {
	return func(r *RemoteKeySets) {
		r.client = c
	}
}

func WithCacheTTL(ttl time.Duration) RemoteKeySetsOption {
	return func(r *RemoteKeySets) {
		r.ttl = ttl
	}
}

func NewRemoteKeySets(options ...RemoteKeySetsOption) *RemoteKeySets {
	r := &RemoteKeySets{
		client:  &http.Client{Timeout: 10 * time.Second},
		ttl:     defaultRemoteKeyTTL,
		nowFunc: time.Now,
		cache:   make(map[string]cachedKeySet),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Get returns the key set at uri, from cache while it is fresh.
func (r *RemoteKeySets) Get(ctx context.Context, uri string) (*jose.JSONWebKeySet, error) {
	r.mu.Lock()
	entry, ok := r.cache[uri]
	r.mu.Unlock()
	if ok && r.nowFunc().Sub(entry.fetched) < r.ttl {
		return entry.set, nil
	}
	return r.Refresh(ctx, uri)
}

// Refresh fetches uri unconditionally and replaces the cached set.
func (r *RemoteKeySets) Refresh(ctx context.Context, uri string) (*jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[RemoteKeySets.Refresh] building request")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "[RemoteKeySets.Refresh] fetching %s", uri)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("[RemoteKeySets.Refresh] %s returned %d", uri, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return nil, errors.Wrap(err, "[RemoteKeySets.Refresh] reading body")
	}
	set, err := ParseJWKS(body)
	if err != nil {
		return nil, errors.Wrapf(err, "[RemoteKeySets.Refresh] %s", uri)
	}

	r.mu.Lock()
	r.cache[uri] = cachedKeySet{set: set, fetched: r.nowFunc()}
	r.mu.Unlock()
	return set, nil
}

// SelectKey picks the public key in set usable for alg, by kid when given.
func SelectKey(set *jose.JSONWebKeySet, alg Algorithm, kid string) (any, error) {
	candidates := set.Keys
	if kid != "" {
		candidates = set.Key(kid)
	}
	for _, k := range candidates {
		if k.Algorithm != "" && k.Algorithm != string(alg) {
			continue
		}
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		public := k.Public()
		switch key := public.Key.(type) {
		case *rsa.PublicKey:
			if alg.Family() == FamilyRSA {
				return key, nil
			}
		case *ecdsa.PublicKey:
			if alg.Family() == FamilyECDSA && key.Curve == alg.Curve() {
				return key, nil
			}
		}
	}
	return nil, errors.Wrapf(ErrKeyNotFound, "no %s key (kid %q) in client JWKS", alg, kid)
}
