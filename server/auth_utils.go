package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-oidc-server/clients"
	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/jrsteele09/go-oidc-server/oauth2"
	"github.com/jrsteele09/go-oidc-server/sessions"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
)

// clientCredentials reads client authentication from the Authorization header
// (client_secret_basic) or the form body (client_secret_post, assertions, none).
// The form must already be parsed.
func clientCredentials(r *http.Request) clients.Credentials {
	if id, secret, ok := r.BasicAuth(); ok {
		// RFC 6749 section 2.3.1 form-encodes both values before base64
		if v, err := url.QueryUnescape(id); err == nil {
			id = v
		}
		if v, err := url.QueryUnescape(secret); err == nil {
			secret = v
		}
		return clients.Credentials{ClientID: id, ClientSecret: secret, Basic: true}
	}
	return clients.Credentials{
		ClientID:      r.PostForm.Get("client_id"),
		ClientSecret:  r.PostForm.Get("client_secret"),
		AssertionType: r.PostForm.Get("client_assertion_type"),
		Assertion:     r.PostForm.Get("client_assertion"),
	}
}

// bearerToken returns the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// accessToken accepts the header or, per RFC 6750 section 2.2, the access_token form field.
func accessToken(r *http.Request) string {
	if t := bearerToken(r); t != "" {
		return t
	}
	if err := r.ParseForm(); err != nil {
		return ""
	}
	return r.PostForm.Get("access_token")
}

func (s *Server) sessionID(r *http.Request) string {
	c, err := r.Cookie(sessions.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (s *Server) setSessionCookie(w http.ResponseWriter, session *sessions.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessions.CookieName,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   strings.HasPrefix(s.issuer, "https://"),
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessions.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   strings.HasPrefix(s.issuer, "https://"),
		SameSite: http.SameSiteLaxMode,
	})
}

// redirectLocation places params in the query string or the fragment of redirectURI.
func redirectLocation(redirectURI string, mode oauth2.ResponseModeType, params url.Values) string {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return redirectURI
	}
	if mode == oauth2.FragmentResponseMode {
		u.Fragment = ""
		u.RawFragment = ""
		return u.String() + "#" + params.Encode()
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

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("failed to write response body")
	}
}

// writeJSONError writes an OAuth2 error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, oauth2.ErrorResponse{Error: errorCode, ErrorDescription: description})
}

// writeError renders err. Protocol errors keep their code and status; anything
// else is logged and reported as server_error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	oe, ok := oautherrors.AsOAuth(err)
	if !ok {
		log.Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSONError(w, oautherrors.CodeServerError, "internal server error", http.StatusInternalServerError)
		return
	}
	status := oe.Status
	switch oe.Code {
	case oautherrors.CodeInvalidClient:
		if _, _, basic := r.BasicAuth(); basic {
			// RFC 6749 section 5.2
			status = http.StatusUnauthorized
			w.Header().Set("WWW-Authenticate", `Basic realm="token"`)
		}
	case oautherrors.CodeInvalidToken:
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+strings.ReplaceAll(oe.Description, `"`, `'`)+`"`)
	}
	writeJSONError(w, oe.Code, oe.Description, status)
}

func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}
