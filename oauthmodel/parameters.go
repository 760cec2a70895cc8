package oauthmodel

import (
	"net/url"
	"strings"

	"github.com/jrsteele09/go-oidc-server/oauth2"
)

// LoginCredentials are end-user credentials supplied with an authorization
// request, a login hand-off or a password grant. Custom holds every request
// parameter so a configured custom authenticator can pick its own.
type LoginCredentials struct {
	Username string
	Password string
	Custom   map[string]string
}

// Present reports whether any credential was supplied.
func (c LoginCredentials) Present() bool {
	return c.Username != "" || c.Password != ""
}

// AuthorizationParameters holds the parameters of an OAuth2/OIDC authorization request,
// received as query parameters (or a form body) at the /authorize endpoint.
type AuthorizationParameters struct {
	// ClientID identifies the application requesting authorization.
	// Validated against: a registered client
	ClientID string

	// ResponseType is the raw, space separated response_type value.
	// Examples: "code", "id_token token", "code id_token"
	ResponseType string

	// RedirectURI must exactly match a registered URI. It may be omitted when the
	// client registered exactly one.
	RedirectURI string

	// ResponseMode is "query" or "fragment". Responses carrying a token are
	// always delivered in the fragment.
	ResponseMode oauth2.ResponseModeType

	// Scope is the requested scope; unknown or unregistered scopes are dropped.
	Scope string

	// State is echoed back unchanged on success and on redirected errors.
	State string

	// Nonce is copied into the ID token. Required whenever id_token is requested
	// from the authorization endpoint.
	Nonce string

	// Prompt is a space separated list of none, login, consent.
	Prompt string

	// CodeChallenge is the PKCE challenge derived from code_verifier.
	// Required for public clients.
	CodeChallenge string

	// CodeChallengeMethod is "S256" or "plain" (the default when a challenge is sent).
	CodeChallengeMethod oauth2.CodeMethodType

	// LoginHint pre-fills the username on the login page.
	LoginHint string

	// Credentials authenticate the end-user inline, without the login hand-off.
	Credentials LoginCredentials
}

// ResponseTypes parses ResponseType.
func (p *AuthorizationParameters) ResponseTypes() oauth2.ResponseTypes {
	return oauth2.ParseResponseTypes(p.ResponseType)
}

// Prompts parses Prompt.
func (p *AuthorizationParameters) Prompts() []string {
	return strings.Fields(p.Prompt)
}

func (p *AuthorizationParameters) HasPrompt(prompt string) bool {
	for _, v := range p.Prompts() {
		if v == prompt {
			return true
		}
	}
	return false
}

// NewAuthorizationParameters reads an authorization request from its query or form values.
// Every parameter is also kept in Credentials.Custom for custom authenticators.
func NewAuthorizationParameters(values url.Values) *AuthorizationParameters {
	return &AuthorizationParameters{
		ClientID:            values.Get("client_id"),
		ResponseType:        values.Get("response_type"),
		RedirectURI:         values.Get("redirect_uri"),
		ResponseMode:        oauth2.ResponseModeType(values.Get("response_mode")),
		Scope:               values.Get("scope"),
		State:               values.Get("state"),
		Nonce:               values.Get("nonce"),
		Prompt:              values.Get("prompt"),
		CodeChallenge:       values.Get("code_challenge"),
		CodeChallengeMethod: oauth2.CodeMethodType(values.Get("code_challenge_method")),
		LoginHint:           values.Get("login_hint"),
		Credentials:         NewLoginCredentials(values),
	}
}

// NewLoginCredentials reads username, password and every other single valued
// parameter from values.
func NewLoginCredentials(values url.Values) LoginCredentials {
	custom := make(map[string]string, len(values))
	for k := range values {
		custom[k] = values.Get(k)
	}
	return LoginCredentials{
		Username: values.Get("username"),
		Password: values.Get("password"),
		Custom:   custom,
	}
}
