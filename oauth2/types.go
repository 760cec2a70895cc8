package oauth2

import "strings"

// ResponseType is one component of the space separated response_type parameter.
type ResponseType string

const (
	// CodeResponseType returns an authorization code.
	// Used in: Authorization Code Flow, Hybrid Flow
	// Example: /authorize?response_type=code&client_id=...
	CodeResponseType ResponseType = "code"

	// TokenResponseType returns an access token directly from the authorization endpoint.
	// Used in: Implicit Flow, Hybrid Flow
	// Security: Only ever delivered in the fragment, never with a refresh token
	TokenResponseType ResponseType = "token"

	// IDTokenResponseType returns an ID token directly from the authorization endpoint.
	// Used in: Implicit Flow, Hybrid Flow
	// Requires: nonce
	IDTokenResponseType ResponseType = "id_token"
)

// ResponseTypes is a parsed response_type parameter. Order is irrelevant.
type ResponseTypes []ResponseType

// ParseResponseTypes splits a response_type value such as "code id_token".
func ParseResponseTypes(value string) ResponseTypes {
	fields := strings.Fields(value)
	rt := make(ResponseTypes, 0, len(fields))
	for _, f := range fields {
		rt = append(rt, ResponseType(f))
	}
	return rt
}

func (r ResponseTypes) Has(t ResponseType) bool {
	for _, v := range r {
		if v == t {
			return true
		}
	}
	return false
}

// IsCodeOnly reports the pure authorization code flow.
func (r ResponseTypes) IsCodeOnly() bool {
	return len(r) == 1 && r[0] == CodeResponseType
}

func (r ResponseTypes) String() string {
	s := make([]string, len(r))
	for i, v := range r {
		s[i] = string(v)
	}
	return strings.Join(s, " ")
}

// ResponseModeType denotes how the authorization response parameters are returned to the client.
type ResponseModeType string

const (
	// QueryResponseMode returns parameters in the URL query string.
	// Used in: pure Authorization Code Flow only
	// Example: https://client.example.com/callback?code=ABC123&state=xyz
	QueryResponseMode ResponseModeType = "query"

	// FragmentResponseMode returns parameters in the URL fragment (after #).
	// Used in: Implicit and Hybrid Flows, and whenever a token is returned
	// Example: https://client.example.com/callback#access_token=ABC123&state=xyz
	FragmentResponseMode ResponseModeType = "fragment"
)

// CodeMethodType represents the PKCE (Proof Key for Code Exchange) challenge method.
type CodeMethodType string

const (
	// CodeMethodTypeS256 indicates SHA-256 hashing is used for the code challenge.
	// Client sends: code_challenge = BASE64URL(SHA256(code_verifier))
	CodeMethodTypeS256 CodeMethodType = "S256"

	// CodeMethodTypePlain means the code_verifier is compared directly.
	CodeMethodTypePlain CodeMethodType = "plain"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	// Token request includes: code, redirect_uri, code_verifier (if PKCE)
	// Returns: access_token, refresh_token, id_token (with openid scope)
	AuthorizationCodeGrant GrantType = "authorization_code"

	// ImplicitGrant is never sent to the token endpoint; it authorizes the
	// token and id_token response types at registration.
	ImplicitGrant GrantType = "implicit"

	// PasswordGrant authenticates the resource owner directly.
	// Token request includes: username, password (or configured custom parameters), scope
	// Returns: access_token, refresh_token, id_token only with openid scope
	PasswordGrant GrantType = "password"

	// ClientCredentialsGrant allows machine-to-machine authentication.
	// Returns: access_token only
	ClientCredentialsGrant GrantType = "client_credentials"

	// RefreshTokenGrant exchanges a refresh token for new tokens.
	// Returns: new access_token and rotated refresh_token
	RefreshTokenGrant GrantType = "refresh_token"
)

// ClientAssertionTypeJWTBearer is the only supported client_assertion_type.
const ClientAssertionTypeJWTBearer = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// Prompt values of the authorization request.
const (
	PromptNone    = "none"
	PromptLogin   = "login"
	PromptConsent = "consent"
)
