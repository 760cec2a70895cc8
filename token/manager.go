package token

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/jrsteele09/go-oidc-server/internal/metrics"
	"github.com/jrsteele09/go-oidc-server/internal/utils"
	"github.com/jrsteele09/go-oidc-server/token/keys"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	opaqueTokenBytes = 32

	backchannelLogoutEvent = "http://schemas.openid.net/event/backchannel-logout"
)

// Grant carries what every token minted for one grant has in common.
type Grant struct {
	ID            string
	GrantType     string
	ClientID      string
	Subject       string
	PublicSubject string
	Scopes        []string
	SessionID     string
	Sid           string
	AuthTime      time.Time
}

// IDTokenParams are the per-token inputs of an ID token on top of its Grant.
type IDTokenParams struct {
	Alg         keys.Algorithm
	KeyRef      keys.KeyRef
	Nonce       string
	Code        string // produces c_hash when set
	AccessToken string // produces at_hash when set
	Claims      map[string]any
}

type Manager struct {
	repo               Repo
	provider           *keys.Provider
	issuer             string
	accessTokenExpiry  time.Duration
	idTokenExpiry      time.Duration
	refreshTokenExpiry time.Duration
	metrics            *metrics.Metrics
	nowFunc            func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenExpiry(accessTokenExpiry time.Duration, idTokenExpiry time.Duration, refreshTokenExpiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = accessTokenExpiry
		m.idTokenExpiry = idTokenExpiry
		m.refreshTokenExpiry = refreshTokenExpiry
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func New(repo Repo, provider *keys.Provider, options ...ManagerOption) *Manager {
	m := &Manager{
		repo:     repo,
		provider: provider,
	}

	for _, opt := range options {
		opt(m)
	}

	if m.accessTokenExpiry == 0 {
		m.accessTokenExpiry = time.Hour
	}
	if m.idTokenExpiry == 0 {
		m.idTokenExpiry = time.Hour
	}
	if m.refreshTokenExpiry == 0 {
		m.refreshTokenExpiry = 7 * 24 * time.Hour
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m
}

func (m *Manager) Issuer() string {
	return m.issuer
}

// AccessTokenExpiry is the lifetime reported as expires_in.
func (m *Manager) AccessTokenExpiry() time.Duration {
	return m.accessTokenExpiry
}

func (m *Manager) record(g Grant, tokenType Type, value string, expiry time.Duration) *Token {
	now := m.nowFunc()
	return &Token{
		Value:         value,
		Type:          tokenType,
		ClientID:      g.ClientID,
		Subject:       g.Subject,
		PublicSubject: g.PublicSubject,
		Scopes:        g.Scopes,
		IssuedAt:      now,
		ExpiresAt:     now.Add(expiry),
		Audience:      []string{g.ClientID},
		Active:        true,
		GrantID:       g.ID,
		GrantType:     g.GrantType,
		SessionID:     g.SessionID,
		Sid:           g.Sid,
		AuthTime:      g.AuthTime,
	}
}

func (m *Manager) issueOpaque(ctx context.Context, g Grant, tokenType Type, expiry time.Duration) (*Token, error) {
	value, err := utils.RandomToken(opaqueTokenBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "[Manager.issueOpaque] %s", tokenType)
	}
	t := m.record(g, tokenType, value, expiry)
	if err := m.repo.Put(ctx, t); err != nil {
		return nil, errors.Wrapf(err, "[Manager.issueOpaque] storing %s", tokenType)
	}
	m.metrics.TokenIssued(g.GrantType, string(tokenType))
	return t, nil
}

// IssueAccessToken mints and stores an opaque access token.
func (m *Manager) IssueAccessToken(ctx context.Context, g Grant) (*Token, error) {
	return m.issueOpaque(ctx, g, TypeAccess, m.accessTokenExpiry)
}

// IssueRefreshToken mints and stores an opaque refresh token.
func (m *Manager) IssueRefreshToken(ctx context.Context, g Grant) (*Token, error) {
	return m.issueOpaque(ctx, g, TypeRefresh, m.refreshTokenExpiry)
}

// IssueIDToken signs an OIDC ID token and stores its record.
func (m *Manager) IssueIDToken(ctx context.Context, g Grant, p IDTokenParams) (*Token, error) {
	now := m.nowFunc()
	claims := jwt.MapClaims{}
	for k, v := range p.Claims {
		claims[k] = v
	}
	claims["iss"] = m.issuer
	claims["sub"] = g.PublicSubject
	claims["aud"] = g.ClientID
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(m.idTokenExpiry).Unix()
	claims["jti"] = uuid.New().String()
	if !g.AuthTime.IsZero() {
		claims["auth_time"] = g.AuthTime.Unix()
	}
	if g.Sid != "" {
		claims["sid"] = g.Sid
	}
	if p.Nonce != "" {
		claims["nonce"] = p.Nonce
	}
	if p.Code != "" {
		claims["c_hash"] = p.Alg.LeftHalfHash(p.Code)
	}
	if p.AccessToken != "" {
		claims["at_hash"] = p.Alg.LeftHalfHash(p.AccessToken)
	}

	signed, err := m.provider.Sign(claims, p.Alg, p.KeyRef)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.IssueIDToken] signing")
	}
	t := m.record(g, TypeID, signed, m.idTokenExpiry)
	t.SigningAlg = string(p.Alg)
	if err := m.repo.Put(ctx, t); err != nil {
		return nil, errors.Wrap(err, "[Manager.IssueIDToken] storing")
	}
	m.metrics.TokenIssued(g.GrantType, string(TypeID))
	return t, nil
}

// IssueLogoutToken signs a back-channel logout token for one client. Logout
// tokens are single-purpose and not stored.
func (m *Manager) IssueLogoutToken(clientID, publicSubject, sid string, alg keys.Algorithm, ref keys.KeyRef) (string, error) {
	now := m.nowFunc()
	claims := jwt.MapClaims{
		"iss":    m.issuer,
		"aud":    clientID,
		"iat":    now.Unix(),
		"exp":    now.Add(2 * time.Minute).Unix(),
		"jti":    uuid.New().String(),
		"events": map[string]any{backchannelLogoutEvent: map[string]any{}},
	}
	if publicSubject != "" {
		claims["sub"] = publicSubject
	}
	if sid != "" {
		claims["sid"] = sid
	}
	signed, err := m.provider.Sign(claims, alg, ref)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.IssueLogoutToken]")
	}
	return signed, nil
}

// VerifyIDToken checks that raw is an ID token this server signed. Expiry is
// not enforced: an id_token_hint may legitimately be expired.
func (m *Manager) VerifyIDToken(ctx context.Context, raw string, refFor func(aud string, alg keys.Algorithm) (keys.KeyRef, error)) (jwt.MapClaims, error) {
	alg, _, err := keys.HeaderAlgorithm(raw)
	if err != nil {
		return nil, err
	}
	unverified := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, unverified); err != nil {
		return nil, errors.Wrap(err, "[Manager.VerifyIDToken] parse")
	}
	aud, _ := unverified.GetAudience()
	if len(aud) == 0 {
		return nil, errors.New("[Manager.VerifyIDToken] token has no audience")
	}
	ref, err := refFor(aud[0], alg)
	if err != nil {
		return nil, err
	}
	claims, err := m.provider.Verify(ctx, raw, alg, ref, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.VerifyIDToken]")
	}
	if iss, _ := claims.GetIssuer(); iss != m.issuer {
		return nil, errors.Errorf("[Manager.VerifyIDToken] unexpected issuer %q", iss)
	}
	return claims, nil
}

// Introspect reports whether value is an active token. It never fails: unknown,
// malformed or unreadable tokens are simply inactive.
func (m *Manager) Introspect(ctx context.Context, value string) (*Token, bool) {
	if strings.TrimSpace(value) == "" {
		m.metrics.Introspection(false)
		return nil, false
	}
	t, err := m.repo.Get(ctx, value)
	if err != nil {
		if !oautherrors.Is(err, oautherrors.ErrNotFound) {
			log.Warn().Err(err).Msg("token lookup failed during introspection")
		}
		m.metrics.Introspection(false)
		return nil, false
	}
	active := t.IsActive(m.nowFunc())
	m.metrics.Introspection(active)
	return t, active
}

// Lookup returns the stored record of value whatever its state.
func (m *Manager) Lookup(ctx context.Context, value string) (*Token, error) {
	t, err := m.repo.Get(ctx, value)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Lookup]")
	}
	return t, nil
}

// ValidateAccessToken returns the record of an active access token, or invalid_token.
func (m *Manager) ValidateAccessToken(ctx context.Context, value string) (*Token, error) {
	t, active := m.Introspect(ctx, value)
	if !active || t.Type != TypeAccess {
		return nil, oautherrors.InvalidToken("access token is invalid or expired")
	}
	return t, nil
}

// Revoke deactivates value. Revoking a refresh token also revokes every token
// of its grant. Unknown tokens are ignored.
func (m *Manager) Revoke(ctx context.Context, value string) error {
	t, err := m.repo.Get(ctx, value)
	if err != nil {
		if oautherrors.Is(err, oautherrors.ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "[Manager.Revoke] lookup")
	}
	if t.Type == TypeRefresh && t.GrantID != "" {
		return m.RevokeGrant(ctx, t.GrantID)
	}
	if _, err := m.repo.Deactivate(ctx, value); err != nil {
		return errors.Wrap(err, "[Manager.Revoke] deactivate")
	}
	return nil
}

// RevokeGrant deactivates every token minted under grantID.
func (m *Manager) RevokeGrant(ctx context.Context, grantID string) error {
	n, err := m.repo.DeactivateGrant(ctx, grantID)
	if err != nil {
		return errors.Wrap(err, "[Manager.RevokeGrant]")
	}
	log.Debug().Str("grant_id", grantID).Int("tokens", n).Msg("grant revoked")
	return nil
}

// RedeemRefreshToken validates value for clientID and deactivates it, returning the
// old record so the caller can mint replacements. Exactly one concurrent
// redemption of a refresh token succeeds.
func (m *Manager) RedeemRefreshToken(ctx context.Context, value, clientID string) (*Token, error) {
	t, err := m.repo.Get(ctx, value)
	if err != nil {
		if oautherrors.Is(err, oautherrors.ErrNotFound) {
			return nil, oautherrors.InvalidGrant("refresh token is invalid")
		}
		return nil, errors.Wrap(err, "[Manager.RedeemRefreshToken] lookup")
	}
	if t.Type != TypeRefresh {
		return nil, oautherrors.InvalidGrant("token is not a refresh token")
	}
	if t.ClientID != clientID {
		return nil, oautherrors.InvalidGrant("refresh token was issued to another client")
	}
	if !t.IsActive(m.nowFunc()) {
		return nil, oautherrors.InvalidGrant("refresh token is expired or revoked")
	}
	flipped, err := m.repo.Deactivate(ctx, value)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.RedeemRefreshToken] deactivate")
	}
	if !flipped {
		return nil, oautherrors.InvalidGrant("refresh token already used")
	}
	return t, nil
}

// CleanupExpired removes expired records from the store.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	return m.repo.DeleteExpired(ctx, m.nowFunc())
}
