package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-oidc-server/auth"
	"github.com/jrsteele09/go-oidc-server/clients"
	"github.com/jrsteele09/go-oidc-server/internal/config"
	"github.com/jrsteele09/go-oidc-server/internal/metrics"
	"github.com/jrsteele09/go-oidc-server/sessions"
	"github.com/jrsteele09/go-oidc-server/token/keys"
	"github.com/jrsteele09/go-oidc-server/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Services are the components the HTTP layer exposes.
type Services struct {
	Auth     *auth.AuthorizationService
	Clients  *clients.Registry
	Sessions *sessions.Coordinator
	Keys     *keys.Provider
	Users    users.UserRepo
	Metrics  *metrics.Metrics
}

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	issuer   string
	auth     *auth.AuthorizationService
	clients  *clients.Registry
	sessions *sessions.Coordinator
	keys     *keys.Provider
	users    users.UserRepo
	metrics  *metrics.Metrics
	limiter  *ipRateLimiter
}

func New(cfg config.Config, svc Services) (*Server, error) {
	if svc.Auth == nil || svc.Clients == nil || svc.Sessions == nil || svc.Keys == nil || svc.Users == nil {
		return nil, errors.New("[server.New] auth, clients, sessions, keys and users are required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		issuer:   cfg.GetIssuer(),
		auth:     svc.Auth,
		clients:  svc.Clients,
		sessions: svc.Sessions,
		keys:     svc.Keys,
		users:    svc.Users,
		metrics:  svc.Metrics,
	}
	if cfg.GetEnableRateLimiting() {
		trusted, err := parseTrustedProxies(cfg.GetTrustedProxies())
		if err != nil {
			return nil, errors.Wrap(err, "[server.New] trusted_proxies")
		}
		s.limiter = newIPRateLimiter(cfg.GetRateLimitRPS(), cfg.GetRateLimitBurst(), trusted)
	}

	if err := s.InitialiseSystem(context.Background()); err != nil {
		return nil, errors.Wrap(err, "[server.New] failed to initialise the system")
	}

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	log.Debug().Msgf("[%s] %s", methodColor(method)+paddedMethod+ResetColor, path)
}

// endpoint is the absolute URL of route under the issuer.
func (s *Server) endpoint(route string) string {
	return s.issuer + route
}
