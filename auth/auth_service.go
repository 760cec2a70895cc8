package auth

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-oidc-server/clients"
	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/jrsteele09/go-oidc-server/internal/utils"
	"github.com/jrsteele09/go-oidc-server/oauth2"
	"github.com/jrsteele09/go-oidc-server/oauthmodel"
	"github.com/jrsteele09/go-oidc-server/sessions"
	"github.com/jrsteele09/go-oidc-server/token"
	"github.com/jrsteele09/go-oidc-server/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// AuthorizationRedirect sends the user agent back to the client. params are
// placed in the query string or the fragment according to responseMode; the
// caller never chooses, the service does (tokens only ever travel in the fragment).
type AuthorizationRedirect func(redirectURI string, responseMode oauth2.ResponseModeType, params url.Values)

// LoginRedirect parks the user agent on the login page for requestID.
type LoginRedirect func(requestID string)

const (
	codeGenerationLength  = 32
	requestIDLength       = 24
	defaultAuthCodeExpiry = 10 * time.Minute
	defaultRequestExpiry  = 15 * time.Minute
	bearerTokenType       = "Bearer"
)

// Repos holds the repository dependencies of the AuthorizationService
type Repos struct {
	Users    users.UserRepo // end users, for authentication and userinfo
	Codes    CodeRepo       // authorization codes
	Requests RequestRepo    // authorization requests waiting for login
}

// AuthorizationService is the grant processor: the authorization endpoint, the
// token endpoint and the token-protected reads.
type AuthorizationService struct {
	repos           Repos
	clients         *clients.Registry
	tokens          *token.Manager
	sessions        *sessions.Coordinator
	authenticator   *users.Authenticator
	customParams    []string
	authCodeTimeout time.Duration
	requestTimeout  time.Duration
	requirePKCE     bool
	pairwiseSalt    string
	nowTime         func() time.Time
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

func WithAuthCodeTimeout(d time.Duration) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.authCodeTimeout = d
	}
}

// WithLoginRequestTimeout bounds how long a parked authorization request waits for login.
func WithLoginRequestTimeout(d time.Duration) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.requestTimeout = d
	}
}

// WithRequirePKCE demands a code_challenge from confidential clients too.
func WithRequirePKCE(require bool) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.requirePKCE = require
	}
}

func WithPairwiseSalt(salt string) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.pairwiseSalt = salt
	}
}

// WithCustomAuthParams enables end-user authentication by directory attributes
// named by request parameters, in addition to username and password.
func WithCustomAuthParams(names []string) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.customParams = names
	}
}

// NewAuthorizationService initializes a new AuthorizationService with required dependencies.
func NewAuthorizationService(
	repos Repos,
	clientRegistry *clients.Registry,
	tokenCreator *token.Manager,
	coordinator *sessions.Coordinator,
	options ...AuthorizationServiceOption,
) (*AuthorizationService, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewAuthorizationService] Users repo is required")
	}
	if repos.Codes == nil {
		return nil, errors.New("[NewAuthorizationService] Codes repo is required")
	}
	if repos.Requests == nil {
		return nil, errors.New("[NewAuthorizationService] Requests repo is required")
	}
	if clientRegistry == nil {
		return nil, errors.New("[NewAuthorizationService] client registry is required")
	}
	if tokenCreator == nil {
		return nil, errors.New("[NewAuthorizationService] tokenCreator is required")
	}
	if coordinator == nil {
		return nil, errors.New("[NewAuthorizationService] session coordinator is required")
	}

	as := &AuthorizationService{
		repos:           repos,
		clients:         clientRegistry,
		tokens:          tokenCreator,
		sessions:        coordinator,
		authCodeTimeout: defaultAuthCodeExpiry,
		requestTimeout:  defaultRequestExpiry,
		nowTime:         time.Now,
	}
	for _, opt := range options {
		opt(as)
	}
	as.authenticator = users.NewAuthenticator(repos.Users, users.WithCustomParams(as.customParams))
	return as, nil
}

// Authorize processes an authorization request.
//
// Errors found before the redirect URI is verified are returned and must be
// shown to the user agent. Later errors are delivered to oauthRedirect and
// Authorize returns nil. When the end-user must log in first the request is
// parked and loginRedirect is called. The returned session is the one the
// response was issued under; the caller sets it as the session cookie.
func (as *AuthorizationService) Authorize(ctx context.Context, params *oauthmodel.AuthorizationParameters, sessionID string, loginRedirect LoginRedirect, oauthRedirect AuthorizationRedirect) (*sessions.Session, error) {
	req, err := as.validate(ctx, params)
	if req == nil {
		return nil, err
	}
	if err != nil {
		return nil, as.redirectError(req, err, oauthRedirect)
	}

	p := req.params
	var session *sessions.Session
	user, supplied, err := as.authenticateUser(ctx, p.Credentials)
	switch {
	case supplied && err != nil:
		return nil, as.redirectError(req, credentialsError(err, oautherrors.AccessDenied), oauthRedirect)
	case supplied:
		if session, err = as.sessions.Authenticate(ctx, sessionID, user.ID); err != nil {
			return nil, errors.Wrap(err, "[AuthorizationService.Authorize] session")
		}
	case !p.HasPrompt(oauth2.PromptLogin):
		s, err := as.sessions.Active(ctx, sessionID)
		if err != nil && !errors.Is(err, sessions.ErrSessionInactive) {
			return nil, errors.Wrap(err, "[AuthorizationService.Authorize] session lookup")
		}
		session = s
	}

	if session == nil {
		if p.HasPrompt(oauth2.PromptNone) {
			return nil, as.redirectError(req, oautherrors.LoginRequired("the end-user is not logged in"), oauthRedirect)
		}
		requestID, err := as.park(ctx, p)
		if err != nil {
			return nil, err
		}
		loginRedirect(requestID)
		return nil, nil
	}

	return as.respond(ctx, req, session, oauthRedirect)
}

// ResumeAuthorization completes a parked authorization request once the
// end-user has supplied credentials. Bad credentials leave the request parked
// so the login can be retried.
func (as *AuthorizationService) ResumeAuthorization(ctx context.Context, requestID string, credentials oauthmodel.LoginCredentials, sessionID string, oauthRedirect AuthorizationRedirect) (*sessions.Session, error) {
	pending, err := as.repos.Requests.Get(ctx, requestID)
	if err != nil {
		if oautherrors.Is(err, oautherrors.ErrNotFound) {
			return nil, oautherrors.InvalidRequest("request_id is unknown or expired")
		}
		return nil, errors.Wrap(err, "[AuthorizationService.ResumeAuthorization] request lookup")
	}

	user, supplied, err := as.authenticateUser(ctx, credentials)
	if !supplied {
		return nil, oautherrors.InvalidRequest("credentials are required")
	}
	if err != nil {
		return nil, credentialsError(err, oautherrors.AccessDenied)
	}

	if err := as.repos.Requests.Delete(ctx, requestID); err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.ResumeAuthorization] request delete")
	}
	req, err := as.validate(ctx, pending.Params)
	if req == nil {
		return nil, err
	}
	if err != nil {
		return nil, as.redirectError(req, err, oauthRedirect)
	}

	session, err := as.sessions.Authenticate(ctx, sessionID, user.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.ResumeAuthorization] session")
	}
	return as.respond(ctx, req, session, oauthRedirect)
}

// validate returns a nil request when the error must not be redirected.
func (as *AuthorizationService) validate(ctx context.Context, params *oauthmodel.AuthorizationParameters) (*authorizationRequest, error) {
	if params == nil || params.ClientID == "" {
		return nil, oautherrors.InvalidRequest("client_id is required")
	}
	client, err := as.clients.Get(ctx, params.ClientID)
	if err != nil {
		if oautherrors.Is(err, oautherrors.ErrNotFound) {
			return nil, oautherrors.InvalidRequest("client_id is unknown")
		}
		return nil, errors.Wrap(err, "[AuthorizationService.validate] client")
	}
	redirectURI, err := resolveRedirectURI(params, client)
	if err != nil {
		return nil, err
	}
	return validateAuthorizationRequest(params, client, redirectURI, as.requirePKCE)
}

func (as *AuthorizationService) park(ctx context.Context, params *oauthmodel.AuthorizationParameters) (string, error) {
	id, err := utils.RandomToken(requestIDLength)
	if err != nil {
		return "", errors.Wrap(err, "[AuthorizationService.park] request id")
	}
	parked := *params
	parked.Credentials = oauthmodel.LoginCredentials{}
	if err := as.repos.Requests.Put(ctx, &PendingRequest{
		ID:        id,
		Params:    &parked,
		ExpiresAt: as.nowTime().Add(as.requestTimeout),
	}); err != nil {
		return "", errors.Wrap(err, "[AuthorizationService.park]")
	}
	return id, nil
}

// respond mints what the response types ask for and redirects. It returns the
// session after the client has joined it.
func (as *AuthorizationService) respond(ctx context.Context, req *authorizationRequest, session *sessions.Session, oauthRedirect AuthorizationRedirect) (*sessions.Session, error) {
	client := req.client
	p := req.params
	rt := req.responseTypes

	session, err := as.sessions.Join(ctx, session.ID, client.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.respond] join session")
	}

	grant := token.Grant{
		ID:            uuid.New().String(),
		GrantType:     string(oauth2.ImplicitGrant),
		ClientID:      client.ID,
		Subject:       session.Subject,
		PublicSubject: client.SubjectFor(session.Subject, as.pairwiseSalt),
		Scopes:        req.scopes,
		SessionID:     session.ID,
		Sid:           session.Sid,
		AuthTime:      session.AuthTime,
	}
	values := url.Values{}

	var code, accessToken string
	if rt.Has(oauth2.CodeResponseType) {
		grant.GrantType = string(oauth2.AuthorizationCodeGrant)
		if code, err = as.issueCode(ctx, p, grant); err != nil {
			return nil, err
		}
		values.Set("code", code)
	}
	if rt.Has(oauth2.TokenResponseType) {
		at, err := as.tokens.IssueAccessToken(ctx, grant)
		if err != nil {
			return nil, errors.Wrap(err, "[AuthorizationService.respond] access token")
		}
		accessToken = at.Value
		values.Set("access_token", at.Value)
		values.Set("token_type", bearerTokenType)
		values.Set("expires_in", strconv.Itoa(int(as.tokens.AccessTokenExpiry().Seconds())))
		values.Set("scope", scopeString(grant.Scopes))
	}
	if rt.Has(oauth2.IDTokenResponseType) {
		idp := token.IDTokenParams{
			Alg:         client.IDTokenAlg(),
			KeyRef:      client.SigningKeyRef(),
			Nonce:       p.Nonce,
			Code:        code,
			AccessToken: accessToken,
		}
		// without an access token the client cannot call userinfo
		if accessToken == "" && code == "" {
			idp.Claims = as.userClaims(session.Subject, grant.Scopes)
		}
		idt, err := as.tokens.IssueIDToken(ctx, grant, idp)
		if err != nil {
			return nil, errors.Wrap(err, "[AuthorizationService.respond] id token")
		}
		values.Set("id_token", idt.Value)
	}
	if p.State != "" {
		values.Set("state", p.State)
	}

	log.Debug().Str("client_id", client.ID).Str("response_type", rt.String()).Str("sid", session.Sid).Msg("authorization granted")
	oauthRedirect(req.redirectURI, req.responseMode, values)
	return session, nil
}

func (as *AuthorizationService) issueCode(ctx context.Context, p *oauthmodel.AuthorizationParameters, grant token.Grant) (string, error) {
	code, err := utils.RandomToken(codeGenerationLength)
	if err != nil {
		return "", errors.Wrap(err, "[AuthorizationService.issueCode] random")
	}
	method := p.CodeChallengeMethod
	if p.CodeChallenge != "" && method == "" {
		method = oauth2.CodeMethodTypePlain
	}
	if err := as.repos.Codes.Put(ctx, &AuthorizationCode{
		Code:                code,
		GrantID:             grant.ID,
		ClientID:            grant.ClientID,
		RedirectURI:         p.RedirectURI,
		Subject:             grant.Subject,
		PublicSubject:       grant.PublicSubject,
		Scopes:              grant.Scopes,
		Nonce:               p.Nonce,
		CodeChallenge:       p.CodeChallenge,
		CodeChallengeMethod: method,
		SessionID:           grant.SessionID,
		Sid:                 grant.Sid,
		AuthTime:            grant.AuthTime,
		ExpiresAt:           as.nowTime().Add(as.authCodeTimeout),
	}); err != nil {
		return "", errors.Wrap(err, "[AuthorizationService.issueCode] store")
	}
	return code, nil
}

// redirectError sends a protocol error to the verified redirect URI.
func (as *AuthorizationService) redirectError(req *authorizationRequest, err error, oauthRedirect AuthorizationRedirect) error {
	oe, ok := oautherrors.AsOAuth(err)
	if !ok {
		return err
	}
	values := url.Values{"error": {oe.Code}}
	if oe.Description != "" {
		values.Set("error_description", oe.Description)
	}
	if req.params.State != "" {
		values.Set("state", req.params.State)
	}
	log.Debug().Str("client_id", req.client.ID).Str("error", oe.Code).Msg(oe.Description)
	oauthRedirect(req.redirectURI, req.responseMode, values)
	return nil
}

// authenticateUser tries the configured custom parameters, then username and
// password. supplied is false when the request carries neither.
func (as *AuthorizationService) authenticateUser(ctx context.Context, credentials oauthmodel.LoginCredentials) (user *users.User, supplied bool, err error) {
	if user, ok, err := as.authenticator.AuthenticateCustom(ctx, credentials.Custom); ok {
		return user, true, err
	}
	if !credentials.Present() {
		return nil, false, nil
	}
	user, err = as.authenticator.AuthenticatePassword(ctx, credentials.Username, credentials.Password)
	return user, true, err
}

// credentialsError maps a failed end-user authentication to the protocol error
// built by protocolErr.
func credentialsError(err error, protocolErr func(string, ...any) *oautherrors.Error) error {
	if errors.Is(err, users.ErrInvalidCredentials) {
		return protocolErr("invalid resource owner credentials")
	}
	return errors.Wrap(err, "[AuthorizationService] authenticating end-user")
}

// userClaims are the profile claims released for scopes. Lookup failures
// release nothing.
func (as *AuthorizationService) userClaims(subject string, scopes []string) map[string]any {
	user, err := as.repos.Users.GetByID(subject)
	if err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("user lookup for claims failed")
		return nil
	}
	return user.Claims(scopes)
}

// CleanupExpired drops expired authorization codes and token records.
func (as *AuthorizationService) CleanupExpired(ctx context.Context) error {
	codes, err := as.repos.Codes.DeleteExpired(ctx, as.nowTime())
	if err != nil {
		return errors.Wrap(err, "[AuthorizationService.CleanupExpired] codes")
	}
	tokens, err := as.tokens.CleanupExpired(ctx)
	if err != nil {
		return errors.Wrap(err, "[AuthorizationService.CleanupExpired] tokens")
	}
	log.Debug().Int("codes", codes).Int("tokens", tokens).Msg("expired records removed")
	return nil
}
