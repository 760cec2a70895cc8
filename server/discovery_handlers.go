package server

import (
	"net/http"

	"github.com/jrsteele09/go-oidc-server/clients"
	"github.com/jrsteele09/go-oidc-server/oauth2"
	"github.com/jrsteele09/go-oidc-server/token/keys"
)

func (s *Server) discoveryDocument() oauth2.DiscoveryDocument {
	var algs, hmacAlgs []string
	for _, alg := range keys.AllAlgorithms() {
		if !s.keys.Supports(alg) {
			continue
		}
		algs = append(algs, string(alg))
		if alg.IsSymmetric() {
			hmacAlgs = append(hmacAlgs, string(alg))
		}
	}

	return oauth2.DiscoveryDocument{
		Issuer:                s.issuer,
		AuthorizationEndpoint: s.endpoint(RouteAuthorize),
		TokenEndpoint:         s.endpoint(RouteToken),
		UserInfoEndpoint:      s.endpoint(RouteUserInfo),
		JWKSURI:               s.endpoint(RouteJWKS),
		RegistrationEndpoint:  s.endpoint(RouteRegister),
		IntrospectionEndpoint: s.endpoint(RouteIntrospection),
		RevocationEndpoint:    s.endpoint(RouteRevoke),
		EndSessionEndpoint:    s.endpoint(RouteEndSession),

		ScopesSupported: clients.DefaultScopes,
		ResponseTypesSupported: []string{
			"code",
			"id_token",
			"token",
			"id_token token",
			"code id_token",
			"code token",
			"code id_token token",
		},
		ResponseModesSupported: []string{string(oauth2.QueryResponseMode), string(oauth2.FragmentResponseMode)},
		GrantTypesSupported: []string{
			string(oauth2.AuthorizationCodeGrant),
			string(oauth2.ImplicitGrant),
			string(oauth2.PasswordGrant),
			string(oauth2.ClientCredentialsGrant),
			string(oauth2.RefreshTokenGrant),
		},
		SubjectTypesSupported:            []string{string(clients.SubjectTypePublic), string(clients.SubjectTypePairwise)},
		IDTokenSigningAlgValuesSupported: algs,
		TokenEndpointAuthMethodsSupported: []string{
			string(clients.AuthMethodClientSecretBasic),
			string(clients.AuthMethodClientSecretPost),
			string(clients.AuthMethodClientSecretJWT),
			string(clients.AuthMethodPrivateKeyJWT),
			string(clients.AuthMethodNone),
		},
		TokenEndpointAuthSigningAlgs:  keysAsStrings(keys.AllAlgorithms()),
		CodeChallengeMethodsSupported: []string{string(oauth2.CodeMethodTypeS256), string(oauth2.CodeMethodTypePlain)},
		ClaimsSupported: []string{
			"sub", "iss", "aud", "exp", "iat", "auth_time", "nonce", "sid", "at_hash", "c_hash",
			"name", "given_name", "family_name", "preferred_username",
			"email", "email_verified", "phone_number",
		},
		FrontchannelLogoutSupported:        true,
		FrontchannelLogoutSessionSupported: true,
		BackchannelLogoutSupported:         true,
		BackchannelLogoutSessionSupported:  true,
	}
}

func keysAsStrings(algs []keys.Algorithm) []string {
	out := make([]string, len(algs))
	for i, a := range algs {
		out[i] = string(a)
	}
	return out
}

// WellKnownOpenIDConfig serves the OIDC discovery document
func (s *Server) WellKnownOpenIDConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, s.discoveryDocument())
	}
}

// JWKS returns the public keys ID tokens are verified with.
func (s *Server) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, s.keys.PublicJWKS())
	}
}
