package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuth2 / OIDC error codes returned in the "error" field of a JSON error body
// or an authorization redirect.
const (
	CodeInvalidRequest          = "invalid_request"
	CodeInvalidClient           = "invalid_client"
	CodeInvalidGrant            = "invalid_grant"
	CodeInvalidScope            = "invalid_scope"
	CodeInvalidClientMetadata   = "invalid_client_metadata"
	CodeInvalidRedirectURI      = "invalid_redirect_uri"
	CodeUnauthorizedClient      = "unauthorized_client"
	CodeUnsupportedGrantType    = "unsupported_grant_type"
	CodeUnsupportedResponseType = "unsupported_response_type"
	CodeLoginRequired           = "login_required"
	CodeAccessDenied            = "access_denied"
	CodeInvalidToken            = "invalid_token"
	CodeServerError             = "server_error"
	CodeSlowDown                = "slow_down"
)

// Sentinel errors shared by the repositories.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrCodeConsumed  = errors.New("authorization code already consumed")
	ErrReplay        = errors.New("assertion replayed")
)

// Error is a protocol error that can be rendered to a client.
// Redirectable marks errors raised after the redirect URI was verified, which
// the authorization endpoint reports back to the client instead of the user agent.
type Error struct {
	Code         string
	Description  string
	Status       int
	Redirectable bool
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// WithRedirect returns a copy of the error that the authorization endpoint may redirect.
func (e *Error) WithRedirect() *Error {
	c := *e
	c.Redirectable = true
	return &c
}

func newError(code string, status int, format string, args ...any) *Error {
	return &Error{Code: code, Description: fmt.Sprintf(format, args...), Status: status}
}

func InvalidRequest(format string, args ...any) *Error {
	return newError(CodeInvalidRequest, http.StatusBadRequest, format, args...)
}

func InvalidClient(format string, args ...any) *Error {
	return newError(CodeInvalidClient, http.StatusBadRequest, format, args...)
}

func InvalidGrant(format string, args ...any) *Error {
	return newError(CodeInvalidGrant, http.StatusBadRequest, format, args...)
}

func InvalidScope(format string, args ...any) *Error {
	return newError(CodeInvalidScope, http.StatusBadRequest, format, args...)
}

func InvalidClientMetadata(format string, args ...any) *Error {
	return newError(CodeInvalidClientMetadata, http.StatusBadRequest, format, args...)
}

func InvalidRedirectURI(format string, args ...any) *Error {
	return newError(CodeInvalidRedirectURI, http.StatusBadRequest, format, args...)
}

func UnauthorizedClient(format string, args ...any) *Error {
	return newError(CodeUnauthorizedClient, http.StatusBadRequest, format, args...)
}

func UnsupportedGrantType(format string, args ...any) *Error {
	return newError(CodeUnsupportedGrantType, http.StatusBadRequest, format, args...)
}

func UnsupportedResponseType(format string, args ...any) *Error {
	return newError(CodeUnsupportedResponseType, http.StatusBadRequest, format, args...)
}

func LoginRequired(format string, args ...any) *Error {
	return newError(CodeLoginRequired, http.StatusBadRequest, format, args...)
}

func AccessDenied(format string, args ...any) *Error {
	return newError(CodeAccessDenied, http.StatusBadRequest, format, args...)
}

// InvalidToken is used by protected reads (registration read, client info, user info) and answers 401.
func InvalidToken(format string, args ...any) *Error {
	return newError(CodeInvalidToken, http.StatusUnauthorized, format, args...)
}

func ServerError(format string, args ...any) *Error {
	return newError(CodeServerError, http.StatusInternalServerError, format, args...)
}

// AsOAuth extracts an *Error from err's chain.
func AsOAuth(err error) (*Error, bool) {
	var oe *Error
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
