package oauthmodel

import (
	"net/url"

	"github.com/jrsteele09/go-oidc-server/clients"
	"github.com/jrsteele09/go-oidc-server/oauth2"
)

// TokenRequest holds the parameters of a request to the /token endpoint.
// Supported grant types: authorization_code, password, client_credentials, refresh_token.
type TokenRequest struct {
	GrantType oauth2.GrantType

	// Credentials authenticate the calling client. The HTTP layer fills them
	// from the Authorization header or the form body.
	Credentials clients.Credentials

	// Code is the authorization code received from the authorization endpoint.
	// Required: authorization_code grant. Single use.
	Code string

	// RedirectURI must repeat the redirect_uri of the authorization request.
	RedirectURI string

	// CodeVerifier is the PKCE verifier matching the stored code_challenge.
	CodeVerifier string

	// RefreshToken is rotated on every use.
	// Required: refresh_token grant.
	RefreshToken string

	// Scope narrows the granted scope (password, client_credentials, refresh_token).
	Scope string

	// Resource owner credentials for the password grant.
	Login LoginCredentials
}

// NewTokenRequest reads the form body of a token request. Credentials are left
// to the caller, which knows whether HTTP Basic was used.
func NewTokenRequest(form url.Values) TokenRequest {
	return TokenRequest{
		GrantType:    oauth2.GrantType(form.Get("grant_type")),
		Code:         form.Get("code"),
		RedirectURI:  form.Get("redirect_uri"),
		CodeVerifier: form.Get("code_verifier"),
		RefreshToken: form.Get("refresh_token"),
		Scope:        form.Get("scope"),
		Login:        NewLoginCredentials(form),
	}
}
