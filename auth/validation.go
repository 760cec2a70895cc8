package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github.com/jrsteele09/go-oidc-server/clients"
	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/jrsteele09/go-oidc-server/internal/utils"
	"github.com/jrsteele09/go-oidc-server/oauth2"
	"github.com/jrsteele09/go-oidc-server/oauthmodel"
)

const (
	minCodeChallengeLength = 43
	maxCodeChallengeLength = 128
)

// authorizationRequest is a validated authorization request.
type authorizationRequest struct {
	params        *oauthmodel.AuthorizationParameters
	client        *clients.Client
	redirectURI   string
	responseTypes oauth2.ResponseTypes
	responseMode  oauth2.ResponseModeType
	scopes        []string
}

// resolveRedirectURI returns the redirect URI to answer on. Errors from here
// must not be redirected.
func resolveRedirectURI(params *oauthmodel.AuthorizationParameters, client *clients.Client) (string, error) {
	if params.RedirectURI == "" {
		if len(client.RedirectURIs) == 1 {
			return client.RedirectURIs[0], nil
		}
		return "", oautherrors.InvalidRequest("redirect_uri is required")
	}
	if !client.HasRedirectURI(params.RedirectURI) {
		return "", oautherrors.InvalidRequest("redirect_uri is not registered for the client")
	}
	return params.RedirectURI, nil
}

// validateAuthorizationRequest checks everything that is reported back to the
// redirect URI. The returned request is usable for error redirects even when err != nil.
func validateAuthorizationRequest(params *oauthmodel.AuthorizationParameters, client *clients.Client, redirectURI string, requirePKCE bool) (*authorizationRequest, error) {
	rt := params.ResponseTypes()
	req := &authorizationRequest{
		params:        params,
		client:        client,
		redirectURI:   redirectURI,
		responseTypes: rt,
		responseMode:  defaultResponseMode(rt),
	}

	if len(rt) == 0 {
		return req, oautherrors.InvalidRequest("response_type is required")
	}
	for _, t := range rt {
		switch t {
		case oauth2.CodeResponseType, oauth2.TokenResponseType, oauth2.IDTokenResponseType:
		default:
			return req, oautherrors.UnsupportedResponseType("response_type %q is not supported", t)
		}
	}
	if !client.AllowsResponseTypes(rt) {
		return req, oautherrors.UnauthorizedClient("client is not registered for response_type %q", rt)
	}

	switch params.ResponseMode {
	case "":
	case oauth2.FragmentResponseMode:
		req.responseMode = oauth2.FragmentResponseMode
	case oauth2.QueryResponseMode:
		if !rt.IsCodeOnly() {
			return req, oautherrors.InvalidRequest("tokens are never returned in the query string")
		}
	default:
		return req, oautherrors.InvalidRequest("response_mode %q is not supported", params.ResponseMode)
	}

	req.scopes = client.IntersectScopes(utils.SplitScopes(params.Scope))
	if rt.Has(oauth2.IDTokenResponseType) {
		if !utils.Contains(req.scopes, "openid") {
			return req, oautherrors.InvalidScope("id_token requires the openid scope")
		}
		if params.Nonce == "" {
			return req, oautherrors.InvalidRequest("nonce is required when id_token is requested")
		}
	}

	if rt.Has(oauth2.CodeResponseType) {
		required := requirePKCE || client.IsPublic()
		if err := validatePKCE(params.CodeChallenge, params.CodeChallengeMethod, required); err != nil {
			return req, err
		}
	}

	if params.HasPrompt(oauth2.PromptNone) && len(params.Prompts()) > 1 {
		return req, oautherrors.InvalidRequest("prompt=none cannot be combined with other values")
	}
	return req, nil
}

// defaultResponseMode is query for the pure code flow and fragment for every
// response that carries a token.
func defaultResponseMode(rt oauth2.ResponseTypes) oauth2.ResponseModeType {
	if rt.IsCodeOnly() {
		return oauth2.QueryResponseMode
	}
	return oauth2.FragmentResponseMode
}

// validatePKCE validates PKCE (Proof Key for Code Exchange) parameters
func validatePKCE(codeChallenge string, method oauth2.CodeMethodType, required bool) error {
	if codeChallenge == "" {
		if required {
			return oautherrors.InvalidRequest("code_challenge is required")
		}
		if method != "" {
			return oautherrors.InvalidRequest("code_challenge_method without code_challenge")
		}
		return nil
	}
	if len(codeChallenge) < minCodeChallengeLength || len(codeChallenge) > maxCodeChallengeLength {
		return oautherrors.InvalidRequest("code_challenge length must be between %d and %d characters", minCodeChallengeLength, maxCodeChallengeLength)
	}
	switch method {
	case "", oauth2.CodeMethodTypePlain, oauth2.CodeMethodTypeS256:
		return nil
	}
	return oautherrors.InvalidRequest("code_challenge_method must be 'S256' or 'plain'")
}

// checkCodeChallenge verifies a code_verifier against the stored challenge.
func checkCodeChallenge(storedChallenge, verifier string, method oauth2.CodeMethodType) bool {
	if storedChallenge == "" {
		return verifier == ""
	}
	if verifier == "" {
		return false
	}
	switch method {
	case oauth2.CodeMethodTypeS256:
		hash := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(hash[:])
		return subtle.ConstantTimeCompare([]byte(computed), []byte(storedChallenge)) == 1
	case "", oauth2.CodeMethodTypePlain:
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(storedChallenge)) == 1
	}
	return false
}

// narrowScopes applies a scope parameter at the token endpoint: omitted keeps
// granted, otherwise every requested scope must already be granted.
func narrowScopes(granted []string, requested string) ([]string, error) {
	req := utils.Dedupe(utils.SplitScopes(requested))
	if len(req) == 0 {
		return granted, nil
	}
	for _, s := range req {
		if !utils.Contains(granted, s) {
			return nil, oautherrors.InvalidScope("scope %q exceeds the original grant", s)
		}
	}
	return req, nil
}

func scopeString(scopes []string) string {
	return strings.Join(scopes, " ")
}
