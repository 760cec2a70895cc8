package server

import (
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-oidc-server/auth"
	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/jrsteele09/go-oidc-server/oauth2"
	"github.com/jrsteele09/go-oidc-server/oauthmodel"
	"github.com/jrsteele09/go-oidc-server/sessions"
)

// authorizeResponder collects the single redirect produced by the authorization
// service so the session cookie can be set before anything is written.
type authorizeResponder struct {
	location string
}

func (a *authorizeResponder) oauthRedirect(redirectURI string, mode oauth2.ResponseModeType, params url.Values) {
	a.location = redirectLocation(redirectURI, mode, params)
}

func (a *authorizeResponder) loginRedirect(loginPageURL string) auth.LoginRedirect {
	return func(requestID string) {
		a.location = redirectLocation(loginPageURL, oauth2.QueryResponseMode, url.Values{"request_id": {requestID}})
	}
}

func (s *Server) finishAuthorization(w http.ResponseWriter, r *http.Request, a *authorizeResponder, session *sessions.Session, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	if session != nil {
		s.setSessionCookie(w, session)
	}
	if a.location == "" {
		writeJSONError(w, oautherrors.CodeServerError, "authorization produced no response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, a.location, http.StatusFound)
}

// Authorize is the authorization endpoint. Parameters come from the query string
// or, for POST, the form body.
func (s *Server) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, oautherrors.CodeInvalidRequest, "failed to parse request", http.StatusBadRequest)
			return
		}
		params := oauthmodel.NewAuthorizationParameters(r.Form)

		a := &authorizeResponder{}
		session, err := s.auth.Authorize(r.Context(), params, s.sessionID(r), a.loginRedirect(s.config.GetLoginPageURL()), a.oauthRedirect)
		s.finishAuthorization(w, r, a, session, err)
	}
}

// Login resumes an authorization request parked for end-user login.
func (s *Server) Login() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, oautherrors.CodeInvalidRequest, "failed to parse form data", http.StatusBadRequest)
			return
		}
		requestID := r.PostForm.Get("request_id")
		if requestID == "" {
			writeJSONError(w, oautherrors.CodeInvalidRequest, "request_id is required", http.StatusBadRequest)
			return
		}

		a := &authorizeResponder{}
		session, err := s.auth.ResumeAuthorization(r.Context(), requestID, oauthmodel.NewLoginCredentials(r.PostForm), s.sessionID(r), a.oauthRedirect)
		s.finishAuthorization(w, r, a, session, err)
	}
}

// Token exchanges a grant for tokens.
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		noStore(w)
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, oautherrors.CodeInvalidRequest, "failed to parse form data", http.StatusBadRequest)
			return
		}

		req := oauthmodel.NewTokenRequest(r.PostForm)
		req.Credentials = clientCredentials(r)

		resp, err := s.auth.Token(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// Introspect answers RFC 7662 requests from clients or bearers of an access token.
func (s *Server) Introspect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, oautherrors.CodeInvalidRequest, "failed to parse form data", http.StatusBadRequest)
			return
		}
		value := r.PostForm.Get("token")
		if value == "" {
			writeJSONError(w, oautherrors.CodeInvalidRequest, "token parameter is required", http.StatusBadRequest)
			return
		}

		caller := auth.Caller{BearerToken: bearerToken(r)}
		if caller.BearerToken == "" {
			caller.Credentials = clientCredentials(r)
		}
		resp, err := s.auth.Introspect(r.Context(), caller, value)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, resp)
	}
}

// Revoke implements RFC 7009.
func (s *Server) Revoke() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, oautherrors.CodeInvalidRequest, "failed to parse form data", http.StatusBadRequest)
			return
		}
		if err := s.auth.Revoke(r.Context(), clientCredentials(r), r.PostForm.Get("token")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// UserInfo returns the claims of the end-user behind an access token.
func (s *Server) UserInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := s.auth.UserInfo(r.Context(), accessToken(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, info)
	}
}

// ClientInfo describes the client an access token was issued to.
func (s *Server) ClientInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, private")
		info, err := s.auth.ClientInfo(r.Context(), accessToken(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}
