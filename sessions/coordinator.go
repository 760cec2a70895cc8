package sessions

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-oidc-server/clients"
	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/jrsteele09/go-oidc-server/internal/metrics"
	"github.com/jrsteele09/go-oidc-server/internal/utils"
	"github.com/jrsteele09/go-oidc-server/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// CookieName carries Session.ID.
	CookieName = "session_id"

	sessionIDBytes = 32
)

var (
	ErrSessionInactive   = errors.New("session is not active")
	ErrSessionTerminated = errors.New("session is terminated")
)

// ClientLookup resolves the clients that joined a session.
type ClientLookup interface {
	Get(ctx context.Context, clientID string) (*clients.Client, error)
}

// ErrorMode selects how end-session failures are reported.
type ErrorMode string

const (
	// ErrorModeJSON answers 400 with a JSON error body.
	ErrorModeJSON ErrorMode = "json"
	// ErrorModeRedirect answers 307 to a registered post_logout_redirect_uri
	// carrying error, error_description and state.
	ErrorModeRedirect ErrorMode = "redirect"
)

func ParseErrorMode(value string) (ErrorMode, error) {
	switch m := ErrorMode(value); m {
	case ErrorModeJSON, ErrorModeRedirect:
		return m, nil
	case "":
		return ErrorModeJSON, nil
	}
	return "", errors.Errorf("unknown end session error mode %q", value)
}

// Coordinator owns browser sessions, end-session and logout notification.
type Coordinator struct {
	repo               Repo
	clients            ClientLookup
	tokens             *token.Manager
	httpClient         *http.Client
	sessionTTL         time.Duration
	backchannelTimeout time.Duration
	maxConcurrent      int
	forceIDTokenHint   bool
	errorMode          ErrorMode
	pairwiseSalt       string
	metrics            *metrics.Metrics
	nowFunc            func() time.Time
}

type CoordinatorOption func(*Coordinator)

func WithSessionTTL(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.sessionTTL = d
	}
}

// WithBackchannelTimeout bounds every back-channel logout request.
func WithBackchannelTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.backchannelTimeout = d
	}
}

// WithHTTPClient sets the client used for back-channel logout requests.
func WithHTTPClient(h *http.Client) CoordinatorOption {
	return func(c *Coordinator) {
		c.httpClient = h
	}
}

func WithForceIDTokenHint(force bool) CoordinatorOption {
	return func(c *Coordinator) {
		c.forceIDTokenHint = force
	}
}

func WithErrorMode(mode ErrorMode) CoordinatorOption {
	return func(c *Coordinator) {
		c.errorMode = mode
	}
}

func WithPairwiseSalt(salt string) CoordinatorOption {
	return func(c *Coordinator) {
		c.pairwiseSalt = salt
	}
}

func WithMetrics(m *metrics.Metrics) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func WithNowFunc(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		c.nowFunc = now
	}
}

func NewCoordinator(repo Repo, clientLookup ClientLookup, tokens *token.Manager, options ...CoordinatorOption) (*Coordinator, error) {
	if repo == nil {
		return nil, errors.New("[NewCoordinator] session repo is required")
	}
	if clientLookup == nil {
		return nil, errors.New("[NewCoordinator] client lookup is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewCoordinator] token manager is required")
	}
	c := &Coordinator{
		repo:               repo,
		clients:            clientLookup,
		tokens:             tokens,
		httpClient:         http.DefaultClient,
		sessionTTL:         24 * time.Hour,
		backchannelTimeout: 5 * time.Second,
		maxConcurrent:      8,
		errorMode:          ErrorModeJSON,
		nowFunc:            time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// SessionTTL is the lifetime of the session cookie.
func (c *Coordinator) SessionTTL() time.Duration {
	return c.sessionTTL
}

// Authenticate records a successful end-user authentication. An active session
// for the same subject is reused with a fresh auth_time; otherwise a new
// session is created.
func (c *Coordinator) Authenticate(ctx context.Context, existingSessionID, subject string) (*Session, error) {
	if subject == "" {
		return nil, errors.New("[Coordinator.Authenticate] subject is required")
	}
	now := c.nowFunc()
	if existingSessionID != "" {
		s, err := c.repo.Update(ctx, existingSessionID, func(s *Session) error {
			if !s.IsActive(now) || s.Subject != subject {
				return ErrSessionInactive
			}
			s.AuthTime = now
			return nil
		})
		if err == nil {
			return s, nil
		}
		if !oautherrors.Is(err, ErrSessionInactive) && !oautherrors.Is(err, oautherrors.ErrNotFound) {
			return nil, errors.Wrap(err, "[Coordinator.Authenticate] reuse")
		}
	}

	id, err := utils.RandomToken(sessionIDBytes)
	if err != nil {
		return nil, errors.Wrap(err, "[Coordinator.Authenticate] session id")
	}
	s := &Session{
		ID:        id,
		Sid:       uuid.New().String(),
		Subject:   subject,
		State:     StateAuthenticated,
		AuthTime:  now,
		CreatedAt: now,
		ExpiresAt: now.Add(c.sessionTTL),
	}
	if err := c.repo.Create(ctx, s); err != nil {
		return nil, errors.Wrap(err, "[Coordinator.Authenticate] create")
	}
	log.Debug().Str("sid", s.Sid).Str("subject", subject).Msg("session created")
	return s, nil
}

// Join records that clientID received tokens under the session.
func (c *Coordinator) Join(ctx context.Context, sessionID, clientID string) (*Session, error) {
	now := c.nowFunc()
	s, err := c.repo.Update(ctx, sessionID, func(s *Session) error {
		if !s.IsActive(now) {
			return ErrSessionInactive
		}
		if s.HasClient(clientID) {
			return nil
		}
		s.AuthenticatedClients = append(s.AuthenticatedClients, clientID)
		if len(s.AuthenticatedClients) > 1 {
			s.State = StateSSOExtended
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Coordinator.Join]")
	}
	return s, nil
}

// Active returns the session when it is neither terminated nor expired.
func (c *Coordinator) Active(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrSessionInactive
	}
	s, err := c.repo.Get(ctx, sessionID)
	if err != nil {
		if oautherrors.Is(err, oautherrors.ErrNotFound) {
			return nil, ErrSessionInactive
		}
		return nil, errors.Wrap(err, "[Coordinator.Active]")
	}
	if !s.IsActive(c.nowFunc()) {
		return nil, ErrSessionInactive
	}
	return s, nil
}

// CleanupExpired drops expired sessions, terminated or not.
func (c *Coordinator) CleanupExpired(ctx context.Context) (int, error) {
	return c.repo.DeleteExpired(ctx, c.nowFunc())
}
