package sessions

import (
	"context"
	"net/url"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-oidc-server/clients"
	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/jrsteele09/go-oidc-server/token/keys"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EndSessionRequest carries the end-session (RP-initiated logout) parameters.
type EndSessionRequest struct {
	IDTokenHint           string
	PostLogoutRedirectURI string
	State                 string
	Sid                   string
	// SessionID is the session cookie, if the user agent sent one.
	SessionID string
}

// EndSessionResult tells the HTTP layer how to answer. RedirectURI is set for a
// plain 302; otherwise HTML holds the logout page. The session cookie is always cleared.
type EndSessionResult struct {
	RedirectURI      string
	HTML             []byte
	FrontChannelURIs []string
	Session          *Session
}

// RedirectError is an end-session failure reported by redirecting (HTTP 307) to
// a registered post_logout_redirect_uri.
type RedirectError struct {
	Err      *oautherrors.Error
	Location string
}

func (e *RedirectError) Error() string {
	return e.Err.Error()
}

func (e *RedirectError) Unwrap() error {
	return e.Err
}

type hint struct {
	clientID string
	client   *clients.Client
	sid      string
	sub      string
}

// EndSession terminates the session identified by the cookie, the sid parameter
// or the id_token_hint (in that order), notifies every client that joined it and
// decides where the user agent goes next. Ending a terminated session again
// succeeds without new notifications.
func (c *Coordinator) EndSession(ctx context.Context, req EndSessionRequest) (*EndSessionResult, error) {
	h, err := c.verifyHint(ctx, req)
	if err != nil {
		return nil, c.fail(ctx, req, nil, nil, err)
	}

	session, err := c.resolveSession(ctx, req, h)
	if err != nil {
		return nil, c.fail(ctx, req, h, nil, err)
	}
	if session == nil && h == nil {
		return nil, c.fail(ctx, req, nil, nil, oautherrors.InvalidRequest("no session to end"))
	}
	// Terminated sessions stay in the repo until they expire, so an unknown
	// hint sid never belonged to a live session.
	if session == nil && h != nil && h.sid != "" {
		return nil, c.fail(ctx, req, h, nil, oautherrors.InvalidRequest("sid of id_token_hint does not match any session"))
	}
	if err := c.checkHintMatchesSession(h, session); err != nil {
		return nil, c.fail(ctx, req, h, session, err)
	}
	if req.PostLogoutRedirectURI != "" && !c.redirectAllowed(ctx, req.PostLogoutRedirectURI, h, session) {
		return nil, c.fail(ctx, req, h, session, oautherrors.InvalidRequest("post_logout_redirect_uri is not registered"))
	}

	result := &EndSessionResult{}
	if session != nil {
		terminated, first, err := c.terminate(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		result.Session = terminated
		if first {
			result.FrontChannelURIs = c.notify(ctx, terminated)
		}
	}

	redirect := ""
	if req.PostLogoutRedirectURI != "" {
		redirect = withQuery(req.PostLogoutRedirectURI, url.Values{"state": nonEmpty(req.State)})
	}
	if len(result.FrontChannelURIs) == 0 && redirect != "" {
		result.RedirectURI = redirect
		return result, nil
	}
	page, err := renderLogoutPage(result.FrontChannelURIs, redirect)
	if err != nil {
		return nil, errors.Wrap(err, "[Coordinator.EndSession] render")
	}
	result.HTML = page
	return result, nil
}

func (c *Coordinator) verifyHint(ctx context.Context, req EndSessionRequest) (*hint, error) {
	if req.IDTokenHint == "" {
		if c.forceIDTokenHint {
			return nil, oautherrors.InvalidRequest("id_token_hint is required")
		}
		return nil, nil
	}

	h := &hint{}
	claims, err := c.tokens.VerifyIDToken(ctx, req.IDTokenHint, func(aud string, alg keys.Algorithm) (keys.KeyRef, error) {
		client, err := c.clients.Get(ctx, aud)
		if err != nil {
			return keys.KeyRef{}, err
		}
		h.client = client
		return client.SigningKeyRef(), nil
	})
	if err != nil {
		log.Debug().Err(err).Msg("id_token_hint rejected")
		return nil, oautherrors.InvalidRequest("id_token_hint is invalid")
	}
	h.clientID = h.client.ID
	h.sid, _ = claims["sid"].(string)
	h.sub, _ = claims.GetSubject()
	return h, nil
}

func (c *Coordinator) resolveSession(ctx context.Context, req EndSessionRequest, h *hint) (*Session, error) {
	var session *Session
	if req.SessionID != "" {
		s, err := c.repo.Get(ctx, req.SessionID)
		if err != nil && !oautherrors.Is(err, oautherrors.ErrNotFound) {
			return nil, errors.Wrap(err, "[Coordinator.resolveSession] cookie")
		}
		session = s
	}
	if session == nil && req.Sid != "" {
		s, err := c.lookupSid(ctx, req.Sid)
		if err != nil {
			return nil, err
		}
		session = s
	}
	if session == nil && h != nil && h.sid != "" {
		s, err := c.lookupSid(ctx, h.sid)
		if err != nil {
			return nil, err
		}
		session = s
	}
	if session != nil && req.Sid != "" && session.Sid != req.Sid {
		return nil, oautherrors.InvalidRequest("sid does not match the session")
	}
	return session, nil
}

func (c *Coordinator) lookupSid(ctx context.Context, sid string) (*Session, error) {
	s, err := c.repo.GetBySid(ctx, sid)
	if err != nil {
		if oautherrors.Is(err, oautherrors.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "[Coordinator.lookupSid]")
	}
	return s, nil
}

func (c *Coordinator) checkHintMatchesSession(h *hint, session *Session) error {
	if h == nil || session == nil {
		return nil
	}
	if h.sid != "" && h.sid != session.Sid {
		return oautherrors.InvalidRequest("id_token_hint does not belong to the session")
	}
	if h.sub != "" && h.sub != h.client.SubjectFor(session.Subject, c.pairwiseSalt) {
		return oautherrors.InvalidRequest("id_token_hint subject does not match the session")
	}
	return nil
}

// redirectAllowed requires the URI to be registered by the hint's client or,
// without a hint, by a client of the session.
func (c *Coordinator) redirectAllowed(ctx context.Context, uri string, h *hint, session *Session) bool {
	if h != nil && h.client != nil {
		return h.client.HasPostLogoutRedirectURI(uri)
	}
	if session == nil {
		return false
	}
	for _, clientID := range session.AuthenticatedClients {
		client, err := c.clients.Get(ctx, clientID)
		if err != nil {
			continue
		}
		if client.HasPostLogoutRedirectURI(uri) {
			return true
		}
	}
	return false
}

// terminate moves the session to TERMINATED and reports whether this call did it.
func (c *Coordinator) terminate(ctx context.Context, sessionID string) (*Session, bool, error) {
	now := c.nowFunc()
	first := false
	s, err := c.repo.Update(ctx, sessionID, func(s *Session) error {
		if s.State == StateTerminated {
			return nil
		}
		first = true
		s.State = StateTerminated
		s.TerminatedAt = now
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "[Coordinator.terminate]")
	}
	if first {
		c.metrics.SessionTerminated()
		log.Info().Str("sid", s.Sid).Int("clients", len(s.AuthenticatedClients)).Msg("session terminated")
	}
	return s, first, nil
}

// fail applies the configured error mode to an end-session failure.
func (c *Coordinator) fail(ctx context.Context, req EndSessionRequest, h *hint, session *Session, err error) error {
	oe, ok := oautherrors.AsOAuth(err)
	if !ok {
		return err
	}
	if c.errorMode != ErrorModeRedirect || req.PostLogoutRedirectURI == "" {
		return oe
	}
	if !c.redirectAllowed(ctx, req.PostLogoutRedirectURI, h, session) && !c.hintClientAllows(ctx, req) {
		return oe
	}
	params := url.Values{
		"error":             {oe.Code},
		"error_description": {oe.Description},
	}
	if req.State != "" {
		params.Set("state", req.State)
	}
	return &RedirectError{Err: oe, Location: withQuery(req.PostLogoutRedirectURI, params)}
}

// hintClientAllows checks the audience of a hint that failed verification.
func (c *Coordinator) hintClientAllows(ctx context.Context, req EndSessionRequest) bool {
	if req.IDTokenHint == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(req.IDTokenHint, claims); err != nil {
		return false
	}
	aud, _ := claims.GetAudience()
	for _, clientID := range aud {
		client, err := c.clients.Get(ctx, clientID)
		if err == nil && client.HasPostLogoutRedirectURI(req.PostLogoutRedirectURI) {
			return true
		}
	}
	return false
}

func withQuery(raw string, params url.Values) string {
	u, err := url.Parse(raw)
	if err != nil || len(params) == 0 {
		return raw
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func nonEmpty(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}
