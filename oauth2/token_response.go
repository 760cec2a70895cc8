package oauth2

// TokenResponse represents the response from an OAuth2 token request (RFC 6749 section 5.1).
type TokenResponse struct {
	// AccessToken is an opaque value; resource servers resolve it via introspection.
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token.
	ExpiresIn int `json:"expires_in,omitempty"`

	// RefreshToken is rotated on every use.
	// Never issued by the implicit flow or client_credentials.
	RefreshToken string `json:"refresh_token,omitempty"`

	// IDToken is present only when "openid" was granted.
	IDToken string `json:"id_token,omitempty"`

	// Scope is the granted scope, which may be narrower than the requested one.
	Scope string `json:"scope,omitempty"`
}

// IntrospectionResponse is the RFC 7662 response. Inactive tokens carry only Active.
type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Username  string `json:"username,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Aud       string `json:"aud,omitempty"`
	Iss       string `json:"iss,omitempty"`
}

// ErrorResponse is the JSON body of every protocol error.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
