package clients

import (
	"context"
	"crypto/subtle"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/jrsteele09/go-oidc-server/internal/metrics"
	"github.com/jrsteele09/go-oidc-server/internal/utils"
	"github.com/jrsteele09/go-oidc-server/token"
	"github.com/jrsteele09/go-oidc-server/token/keys"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	secretBytes                  = 32
	registrationAccessTokenBytes = 32
)

// UpdatePolicy decides what happens to metadata fields an update omits.
type UpdatePolicy string

const (
	// UpdatePolicyRetain keeps the stored value of every omitted field.
	UpdatePolicyRetain UpdatePolicy = "retain"
	// UpdatePolicyReset replaces the metadata with the request after defaults are applied.
	UpdatePolicyReset UpdatePolicy = "reset"
)

func ParseUpdatePolicy(value string) (UpdatePolicy, error) {
	switch p := UpdatePolicy(value); p {
	case UpdatePolicyRetain, UpdatePolicyReset:
		return p, nil
	case "":
		return UpdatePolicyRetain, nil
	}
	return "", errors.Errorf("unknown registration update policy %q", value)
}

var DefaultScopes = []string{"openid", "profile", "email", "address", "phone", "offline_access"}

// Registry owns client registration, registration management and client authentication.
type Registry struct {
	repo                 Repo
	provider             *keys.Provider
	replay               token.ReplayCache
	httpClient           *http.Client
	sectorTimeout        time.Duration
	updatePolicy         UpdatePolicy
	defaultIDTokenAlg    keys.Algorithm
	defaultScopes        []string
	registrationEndpoint string
	tokenEndpoint        string
	metrics              *metrics.Metrics
	nowFunc              func() time.Time

	writeMu sync.Mutex
}

type RegistryOption func(*Registry)

// WithHTTPClient sets the client used to fetch sector identifier documents.
func WithHTTPClient(c *http.Client) RegistryOption {
	return func(r *Registry) {
		r.httpClient = c
	}
}

func WithSectorIdentifierTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.sectorTimeout = d
	}
}

func WithUpdatePolicy(p UpdatePolicy) RegistryOption {
	return func(r *Registry) {
		r.updatePolicy = p
	}
}

func WithDefaultIDTokenAlg(alg keys.Algorithm) RegistryOption {
	return func(r *Registry) {
		r.defaultIDTokenAlg = alg
	}
}

func WithDefaultScopes(scopes []string) RegistryOption {
	return func(r *Registry) {
		r.defaultScopes = scopes
	}
}

// WithEndpoints sets the registration endpoint (for registration_client_uri) and
// the token endpoint (the required audience of client assertions).
func WithEndpoints(registrationEndpoint, tokenEndpoint string) RegistryOption {
	return func(r *Registry) {
		r.registrationEndpoint = registrationEndpoint
		r.tokenEndpoint = tokenEndpoint
	}
}

func WithReplayCache(c token.ReplayCache) RegistryOption {
	return func(r *Registry) {
		r.replay = c
	}
}

func WithMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

func WithNowFunc(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.nowFunc = now
	}
}

func NewRegistry(repo Repo, provider *keys.Provider, options ...RegistryOption) (*Registry, error) {
	if repo == nil {
		return nil, errors.New("[NewRegistry] client repo is required")
	}
	if provider == nil {
		return nil, errors.New("[NewRegistry] key provider is required")
	}
	r := &Registry{
		repo:              repo,
		provider:          provider,
		httpClient:        http.DefaultClient,
		sectorTimeout:     10 * time.Second,
		updatePolicy:      UpdatePolicyRetain,
		defaultIDTokenAlg: keys.RS256,
		defaultScopes:     DefaultScopes,
		nowFunc:           time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	if r.replay == nil {
		r.replay = token.NewInMemoryReplayCache()
	}
	return r, nil
}

// Register validates metadata, applies defaults and stores a new client with
// fresh credentials.
func (r *Registry) Register(ctx context.Context, m *Metadata) (client *Client, err error) {
	defer func() { r.metrics.Registration("register", err) }()

	if m == nil {
		m = &Metadata{}
	}
	md := (&Client{Metadata: *m}).Clone().Metadata
	md.ClientSecret = ""
	if err := r.prepare(ctx, &md); err != nil {
		return nil, err
	}

	c := &Client{
		ID:         uuid.New().String(),
		IDIssuedAt: r.nowFunc().Unix(),
		Metadata:   md,
	}
	if c.TokenEndpointAuthMethod.UsesSecret() {
		if c.Secret, err = utils.RandomToken(secretBytes); err != nil {
			return nil, errors.Wrap(err, "[Registry.Register] client secret")
		}
	}
	if c.RegistrationAccessToken, err = utils.RandomToken(registrationAccessTokenBytes); err != nil {
		return nil, errors.Wrap(err, "[Registry.Register] registration access token")
	}
	if r.registrationEndpoint != "" {
		c.RegistrationClientURI = r.registrationEndpoint + "?client_id=" + url.QueryEscape(c.ID)
	}

	if err := r.repo.Upsert(c); err != nil {
		return nil, errors.Wrap(err, "[Registry.Register] storing client")
	}
	log.Info().Str("client_id", c.ID).Str("auth_method", string(c.TokenEndpointAuthMethod)).Msg("client registered")
	return c.Clone(), nil
}

func (r *Registry) prepare(ctx context.Context, md *Metadata) error {
	applyDefaults(md, r.defaultIDTokenAlg, r.defaultScopes)
	if err := validateMetadata(md, r.provider); err != nil {
		return err
	}
	if md.SectorIdentifierURI != "" {
		return r.verifySectorIdentifier(ctx, md.SectorIdentifierURI, md.RedirectURIs)
	}
	return nil
}

// Read returns a client for a caller presenting its registration access token.
func (r *Registry) Read(ctx context.Context, clientID, registrationAccessToken string) (client *Client, err error) {
	defer func() { r.metrics.Registration("read", err) }()
	return r.authorizeManagement(clientID, registrationAccessToken)
}

func (r *Registry) authorizeManagement(clientID, registrationAccessToken string) (*Client, error) {
	c, err := r.repo.Get(clientID)
	if err != nil {
		if oautherrors.Is(err, oautherrors.ErrNotFound) {
			return nil, oautherrors.InvalidToken("registration access token is invalid")
		}
		return nil, errors.Wrap(err, "[Registry.authorizeManagement]")
	}
	if !constantTimeEqual(c.RegistrationAccessToken, registrationAccessToken) {
		return nil, oautherrors.InvalidToken("registration access token is invalid")
	}
	return c, nil
}

// Update changes the metadata of a client. Omitted fields follow the registry's
// UpdatePolicy; client_id, secret and registration credentials never change here.
func (r *Registry) Update(ctx context.Context, clientID, registrationAccessToken string, m *Metadata) (client *Client, err error) {
	defer func() { r.metrics.Registration("update", err) }()

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	c, err := r.authorizeManagement(clientID, registrationAccessToken)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = &Metadata{}
	}
	if m.ClientSecret != "" && !constantTimeEqual(c.Secret, m.ClientSecret) {
		return nil, oautherrors.InvalidClientMetadata("client_secret does not match the current secret")
	}

	in := (&Client{Metadata: *m}).Clone().Metadata
	var md Metadata
	switch r.updatePolicy {
	case UpdatePolicyReset:
		md = in
	default:
		md = mergeMetadata(c.Metadata, in)
	}
	md.ClientSecret = ""
	if err := r.prepare(ctx, &md); err != nil {
		return nil, err
	}

	c.Metadata = md
	switch {
	case !c.TokenEndpointAuthMethod.UsesSecret():
		c.Secret = ""
	case c.Secret == "":
		if c.Secret, err = utils.RandomToken(secretBytes); err != nil {
			return nil, errors.Wrap(err, "[Registry.Update] client secret")
		}
	}
	if err := r.repo.Upsert(c); err != nil {
		return nil, errors.Wrap(err, "[Registry.Update] storing client")
	}
	return c.Clone(), nil
}

// RotateSecret issues a new client secret. The old secret stops working immediately.
func (r *Registry) RotateSecret(ctx context.Context, clientID, registrationAccessToken string) (client *Client, err error) {
	defer func() { r.metrics.Registration("rotate_secret", err) }()

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	c, err := r.authorizeManagement(clientID, registrationAccessToken)
	if err != nil {
		return nil, err
	}
	if !c.TokenEndpointAuthMethod.UsesSecret() {
		return nil, oautherrors.InvalidClientMetadata("client with token_endpoint_auth_method %s has no secret", c.TokenEndpointAuthMethod)
	}
	if c.Secret, err = utils.RandomToken(secretBytes); err != nil {
		return nil, errors.Wrap(err, "[Registry.RotateSecret]")
	}
	if err := r.repo.Upsert(c); err != nil {
		return nil, errors.Wrap(err, "[Registry.RotateSecret] storing client")
	}
	log.Info().Str("client_id", c.ID).Msg("client secret rotated")
	return c.Clone(), nil
}

// Get looks a client up without authorization. Unknown ids give errors.ErrNotFound.
func (r *Registry) Get(ctx context.Context, clientID string) (*Client, error) {
	c, err := r.repo.Get(clientID)
	if err != nil {
		return nil, errors.Wrapf(err, "[Registry.Get] %s", clientID)
	}
	return c, nil
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func keep[T comparable](stored, in T) T {
	var zero T
	if in == zero {
		return stored
	}
	return in
}

func keepSlice[S ~[]E, E any](stored, in S) S {
	if len(in) == 0 {
		return stored
	}
	return in
}

func mergeMetadata(stored, in Metadata) Metadata {
	out := stored
	out.RedirectURIs = keepSlice(stored.RedirectURIs, in.RedirectURIs)
	out.PostLogoutRedirectURIs = keepSlice(stored.PostLogoutRedirectURIs, in.PostLogoutRedirectURIs)
	out.ClaimsRedirectURIs = keepSlice(stored.ClaimsRedirectURIs, in.ClaimsRedirectURIs)
	out.ResponseTypes = keepSlice(stored.ResponseTypes, in.ResponseTypes)
	out.GrantTypes = keepSlice(stored.GrantTypes, in.GrantTypes)
	out.ApplicationType = keep(stored.ApplicationType, in.ApplicationType)
	out.ClientName = keep(stored.ClientName, in.ClientName)
	out.ClientURI = keep(stored.ClientURI, in.ClientURI)
	out.LogoURI = keep(stored.LogoURI, in.LogoURI)
	out.PolicyURI = keep(stored.PolicyURI, in.PolicyURI)
	out.TOSURI = keep(stored.TOSURI, in.TOSURI)
	out.Contacts = keepSlice(stored.Contacts, in.Contacts)
	out.Scope = keep(stored.Scope, in.Scope)
	out.JWKSURI = keep(stored.JWKSURI, in.JWKSURI)
	out.JWKS = keepSlice(stored.JWKS, in.JWKS)
	out.SectorIdentifierURI = keep(stored.SectorIdentifierURI, in.SectorIdentifierURI)
	out.SubjectType = keep(stored.SubjectType, in.SubjectType)
	out.IDTokenSignedResponseAlg = keep(stored.IDTokenSignedResponseAlg, in.IDTokenSignedResponseAlg)
	out.RequestObjectSigningAlg = keep(stored.RequestObjectSigningAlg, in.RequestObjectSigningAlg)
	out.TokenEndpointAuthMethod = keep(stored.TokenEndpointAuthMethod, in.TokenEndpointAuthMethod)
	out.TokenEndpointAuthSigningAlg = keep(stored.TokenEndpointAuthSigningAlg, in.TokenEndpointAuthSigningAlg)
	out.FrontChannelLogoutURI = keep(stored.FrontChannelLogoutURI, in.FrontChannelLogoutURI)
	out.FrontChannelLogoutSessionRequired = keep(stored.FrontChannelLogoutSessionRequired, in.FrontChannelLogoutSessionRequired)
	out.BackchannelLogoutURIs = keepSlice(stored.BackchannelLogoutURIs, in.BackchannelLogoutURIs)
	out.BackchannelLogoutSessionRequired = keep(stored.BackchannelLogoutSessionRequired, in.BackchannelLogoutSessionRequired)
	if len(in.CustomAttributes) > 0 {
		out.CustomAttributes = in.CustomAttributes
	}
	return out
}
