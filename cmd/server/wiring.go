package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-oidc-server/auth"
	fakecoderepo "github.com/jrsteele09/go-oidc-server/auth/repofakes"
	"github.com/jrsteele09/go-oidc-server/clients"
	fakeclientrepo "github.com/jrsteele09/go-oidc-server/clients/fakerepo"
	"github.com/jrsteele09/go-oidc-server/internal/boltstore"
	"github.com/jrsteele09/go-oidc-server/internal/config"
	"github.com/jrsteele09/go-oidc-server/internal/metrics"
	"github.com/jrsteele09/go-oidc-server/internal/redisstore"
	"github.com/jrsteele09/go-oidc-server/server"
	"github.com/jrsteele09/go-oidc-server/server/authflowrepo"
	"github.com/jrsteele09/go-oidc-server/sessions"
	fakesessionrepo "github.com/jrsteele09/go-oidc-server/sessions/repofakes"
	"github.com/jrsteele09/go-oidc-server/token"
	"github.com/jrsteele09/go-oidc-server/token/keys"
	tokenfakerepo "github.com/jrsteele09/go-oidc-server/token/repofake"
	fakeuserrepo "github.com/jrsteele09/go-oidc-server/users/repofake"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	backendMemory = "memory"
	backendRedis  = "redis"
	backendBolt   = "bolt"

	redisConnectTimeout = 30 * time.Second
)

type storage struct {
	tokens   token.Repo
	sessions sessions.Repo
	codes    auth.CodeRepo
	requests auth.RequestRepo
	replay   token.ReplayCache
	clients  clients.Repo

	// sweep drops parked login requests when they are held in memory.
	sweep   func() int
	closers []func() error
}

type application struct {
	handler     http.Handler
	auth        *auth.AuthorizationService
	coordinator *sessions.Coordinator
	storage     *storage
}

// wire builds every service from cfg.
func wire(ctx context.Context, cfg config.Config) (*application, error) {
	store, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app, err := wireServices(cfg, store)
	if err != nil {
		store.close()
		return nil, err
	}
	return app, nil
}

func openStorage(ctx context.Context, cfg config.Config) (*storage, error) {
	store := &storage{}

	switch backend := strings.ToLower(cfg.GetStorageBackend()); backend {
	case backendRedis:
		rs, err := redisstore.Connect(ctx, cfg.GetRedisURL(), redisConnectTimeout)
		if err != nil {
			return nil, err
		}
		store.tokens = rs.Tokens()
		store.sessions = rs.Sessions()
		store.codes = rs.Codes()
		store.requests = rs.Requests()
		store.replay = rs.ReplayCache()
		store.closers = append(store.closers, rs.Close)
	case backendMemory, "":
		requests := authflowrepo.NewInMemoryRepo()
		store.tokens = tokenfakerepo.NewFakeTokensRepo()
		store.sessions = fakesessionrepo.NewFakeSessionRepo()
		store.codes = fakecoderepo.NewFakeCodeRepo()
		store.requests = requests
		store.replay = token.NewInMemoryReplayCache()
		store.sweep = requests.Sweep
	default:
		return nil, errors.Errorf("[openStorage] unknown storage backend %q", backend)
	}

	switch clientStore := strings.ToLower(cfg.GetClientStore()); clientStore {
	case backendBolt:
		repo, err := boltstore.Open(cfg.GetBoltPath())
		if err != nil {
			store.close()
			return nil, err
		}
		store.clients = repo
		store.closers = append(store.closers, repo.Close)
	case backendMemory, "":
		store.clients = fakeclientrepo.NewFakeClientRepo()
	default:
		store.close()
		return nil, errors.Errorf("[openStorage] unknown client store %q", clientStore)
	}

	log.Info().
		Str("storage_backend", cfg.GetStorageBackend()).
		Str("client_store", cfg.GetClientStore()).
		Msg("storage ready")
	return store, nil
}

func (s *storage) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warn().Err(err).Msg("closing storage")
		}
	}
}

func wireServices(cfg config.Config, store *storage) (*application, error) {
	issuer := strings.TrimSuffix(cfg.GetIssuer(), "/")
	mt := metrics.New()

	algs, err := keys.ParseAlgorithms(cfg.GetSigningAlgorithms())
	if err != nil {
		return nil, err
	}
	defaultAlg, err := keys.ParseAlgorithm(cfg.GetDefaultIDTokenAlg())
	if err != nil {
		return nil, err
	}
	keystore, err := keys.NewKeystore(algs)
	if err != nil {
		return nil, err
	}
	provider, err := keys.NewProvider(keystore, keys.NewRemoteKeySets())
	if err != nil {
		return nil, err
	}

	policy, err := clients.ParseUpdatePolicy(cfg.GetRegistrationUpdatePolicy())
	if err != nil {
		return nil, err
	}
	registry, err := clients.NewRegistry(store.clients, provider,
		clients.WithEndpoints(issuer+server.RouteRegister, issuer+server.RouteToken),
		clients.WithUpdatePolicy(policy),
		clients.WithDefaultIDTokenAlg(defaultAlg),
		clients.WithSectorIdentifierTimeout(cfg.GetSectorIdentifierTimeout()),
		clients.WithReplayCache(store.replay),
		clients.WithMetrics(mt),
	)
	if err != nil {
		return nil, err
	}

	tokens := token.New(store.tokens, provider,
		token.WithIssuer(issuer),
		token.WithTokenExpiry(cfg.GetAccessTokenExpiry(), cfg.GetIDTokenExpiry(), cfg.GetRefreshTokenExpiry()),
		token.WithMetrics(mt),
	)

	errorMode, err := sessions.ParseErrorMode(cfg.GetEndSessionErrorMode())
	if err != nil {
		return nil, err
	}
	coordinator, err := sessions.NewCoordinator(store.sessions, registry, tokens,
		sessions.WithSessionTTL(cfg.GetSessionTTL()),
		sessions.WithBackchannelTimeout(cfg.GetBackchannelLogoutTimeout()),
		sessions.WithForceIDTokenHint(cfg.GetForceIDTokenHint()),
		sessions.WithErrorMode(errorMode),
		sessions.WithPairwiseSalt(cfg.GetPairwiseSalt()),
		sessions.WithMetrics(mt),
	)
	if err != nil {
		return nil, err
	}

	userRepo := fakeuserrepo.NewFakeUserRepo()
	service, err := auth.NewAuthorizationService(auth.Repos{
		Users:    userRepo,
		Codes:    store.codes,
		Requests: store.requests,
	}, registry, tokens, coordinator,
		auth.WithAuthCodeTimeout(cfg.GetAuthCodeTimeout()),
		auth.WithRequirePKCE(cfg.GetRequirePKCE()),
		auth.WithPairwiseSalt(cfg.GetPairwiseSalt()),
		auth.WithCustomAuthParams(cfg.GetCustomAuthParams()),
	)
	if err != nil {
		return nil, err
	}

	srv, err := server.New(cfg, server.Services{
		Auth:     service,
		Clients:  registry,
		Sessions: coordinator,
		Keys:     provider,
		Users:    userRepo,
		Metrics:  mt,
	})
	if err != nil {
		return nil, err
	}

	return &application{
		handler:     srv,
		auth:        service,
		coordinator: coordinator,
		storage:     store,
	}, nil
}

// housekeeping removes expired records until ctx is cancelled. Redis expires
// its own keys so most of these calls are no-ops there.
func (a *application) housekeeping(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.sweep(ctx, now)
		}
	}
}

func (a *application) sweep(ctx context.Context, now time.Time) {
	if err := a.auth.CleanupExpired(ctx); err != nil {
		log.Warn().Err(err).Msg("cleaning up codes and tokens")
	}
	if n, err := a.coordinator.CleanupExpired(ctx); err != nil {
		log.Warn().Err(err).Msg("cleaning up sessions")
	} else if n > 0 {
		log.Debug().Int("sessions", n).Msg("expired sessions removed")
	}
	if a.storage.sweep != nil {
		if n := a.storage.sweep(); n > 0 {
			log.Debug().Int("requests", n).Msg("expired login requests removed")
		}
	}
	a.storage.replay.Cleanup(now)
}

func (a *application) close() {
	a.storage.close()
}
