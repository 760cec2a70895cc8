package clients

import (
	"net/url"
	"strings"

	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/jrsteele09/go-oidc-server/internal/utils"
	"github.com/jrsteele09/go-oidc-server/oauth2"
	"github.com/jrsteele09/go-oidc-server/token/keys"
	"github.com/pkg/errors"
)

// applyDefaults fills the values a registration may omit.
func applyDefaults(m *Metadata, defaultAlg keys.Algorithm, defaultScopes []string) {
	if len(m.ResponseTypes) == 0 {
		m.ResponseTypes = []string{string(oauth2.CodeResponseType)}
	}
	m.ResponseTypes = utils.Dedupe(splitEach(m.ResponseTypes))
	if len(m.GrantTypes) == 0 {
		m.GrantTypes = []string{string(oauth2.AuthorizationCodeGrant)}
	}
	for _, rt := range m.ResponseTypes {
		switch oauth2.ResponseType(rt) {
		case oauth2.CodeResponseType:
			m.GrantTypes = append(m.GrantTypes, string(oauth2.AuthorizationCodeGrant))
		case oauth2.TokenResponseType, oauth2.IDTokenResponseType:
			m.GrantTypes = append(m.GrantTypes, string(oauth2.ImplicitGrant))
		}
	}
	m.GrantTypes = utils.Dedupe(m.GrantTypes)
	m.RedirectURIs = utils.Dedupe(m.RedirectURIs)
	m.PostLogoutRedirectURIs = utils.Dedupe(m.PostLogoutRedirectURIs)

	if m.ApplicationType == "" {
		m.ApplicationType = ApplicationTypeWeb
	}
	if m.TokenEndpointAuthMethod == "" {
		m.TokenEndpointAuthMethod = AuthMethodClientSecretBasic
	}
	if m.IDTokenSignedResponseAlg == "" {
		m.IDTokenSignedResponseAlg = string(defaultAlg)
	}
	if m.SubjectType == "" {
		m.SubjectType = SubjectTypePublic
	}
	if strings.TrimSpace(m.Scope) == "" {
		m.Scope = utils.JoinScopes(defaultScopes)
	} else {
		m.Scope = utils.JoinScopes(utils.Dedupe(utils.SplitScopes(m.Scope)))
	}
}

// splitEach accepts both ["code", "id_token"] and ["code id_token"].
func splitEach(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.Fields(v)...)
	}
	return out
}

// validateMetadata checks everything that can be decided without network access.
func validateMetadata(m *Metadata, provider *keys.Provider) error {
	for _, rt := range m.ResponseTypes {
		switch oauth2.ResponseType(rt) {
		case oauth2.CodeResponseType, oauth2.TokenResponseType, oauth2.IDTokenResponseType:
		default:
			return oautherrors.InvalidClientMetadata("unsupported response_type %q", rt)
		}
	}
	for _, gt := range m.GrantTypes {
		switch oauth2.GrantType(gt) {
		case oauth2.AuthorizationCodeGrant, oauth2.ImplicitGrant, oauth2.PasswordGrant,
			oauth2.ClientCredentialsGrant, oauth2.RefreshTokenGrant:
		default:
			return oautherrors.InvalidClientMetadata("unsupported grant_type %q", gt)
		}
	}

	if utils.Contains(m.ResponseTypes, string(oauth2.CodeResponseType)) && len(m.RedirectURIs) == 0 {
		return oautherrors.InvalidRedirectURI("redirect_uris are required for the code response type")
	}
	if utils.Contains(m.GrantTypes, string(oauth2.ImplicitGrant)) && len(m.RedirectURIs) == 0 {
		return oautherrors.InvalidRedirectURI("redirect_uris are required for the implicit grant")
	}
	for _, uri := range m.RedirectURIs {
		if strings.Contains(uri, "#") {
			return oautherrors.InvalidClientMetadata("redirect_uri %q must not contain a fragment", uri)
		}
		if err := validateAbsoluteURI(uri); err != nil {
			return oautherrors.InvalidRedirectURI("redirect_uri %q: %s", uri, err.Error())
		}
	}
	for _, uri := range m.PostLogoutRedirectURIs {
		if err := validateAbsoluteURI(uri); err != nil {
			return oautherrors.InvalidClientMetadata("post_logout_redirect_uri %q: %s", uri, err.Error())
		}
	}
	if m.FrontChannelLogoutURI != "" {
		if err := validateAbsoluteURI(m.FrontChannelLogoutURI); err != nil {
			return oautherrors.InvalidClientMetadata("frontchannel_logout_uri: %s", err.Error())
		}
	}
	for _, uri := range m.BackchannelLogoutURIs {
		if err := validateAbsoluteURI(uri); err != nil {
			return oautherrors.InvalidClientMetadata("backchannel_logout_uri %q: %s", uri, err.Error())
		}
	}

	switch m.ApplicationType {
	case ApplicationTypeWeb, ApplicationTypeNative:
	default:
		return oautherrors.InvalidClientMetadata("unsupported application_type %q", m.ApplicationType)
	}
	switch m.SubjectType {
	case SubjectTypePublic, SubjectTypePairwise:
	default:
		return oautherrors.InvalidClientMetadata("unsupported subject_type %q", m.SubjectType)
	}
	if m.SectorIdentifierURI != "" {
		u, err := url.Parse(m.SectorIdentifierURI)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			return oautherrors.InvalidClientMetadata("sector_identifier_uri must be an https URL")
		}
	}
	if m.SubjectType == SubjectTypePairwise && m.SectorIdentifierURI == "" && len(redirectHosts(m.RedirectURIs)) > 1 {
		return oautherrors.InvalidClientMetadata("pairwise clients with redirect_uris on several hosts need a sector_identifier_uri")
	}

	if err := validateAlgorithms(m, provider); err != nil {
		return err
	}
	if m.JWKSURI != "" && len(m.JWKS) > 0 {
		return oautherrors.InvalidClientMetadata("jwks and jwks_uri are mutually exclusive")
	}
	if m.JWKSURI != "" {
		if err := validateAbsoluteURI(m.JWKSURI); err != nil {
			return oautherrors.InvalidClientMetadata("jwks_uri: %s", err.Error())
		}
	}
	if len(m.JWKS) > 0 {
		if _, err := keys.ParseJWKS(m.JWKS); err != nil {
			return oautherrors.InvalidClientMetadata("jwks: %s", err.Error())
		}
	}
	return nil
}

func validateAlgorithms(m *Metadata, provider *keys.Provider) error {
	if !m.TokenEndpointAuthMethod.valid() {
		return oautherrors.InvalidClientMetadata("unsupported token_endpoint_auth_method %q", m.TokenEndpointAuthMethod)
	}

	idAlg, err := keys.ParseAlgorithm(m.IDTokenSignedResponseAlg)
	if err != nil {
		return oautherrors.InvalidClientMetadata("id_token_signed_response_alg: %s", err.Error())
	}
	if !provider.Supports(idAlg) {
		return oautherrors.InvalidClientMetadata("id_token_signed_response_alg %s is not enabled on this server", idAlg)
	}
	if idAlg.IsSymmetric() && !m.TokenEndpointAuthMethod.UsesSecret() {
		return oautherrors.InvalidClientMetadata("id_token_signed_response_alg %s needs a client secret", idAlg)
	}

	if m.RequestObjectSigningAlg != "" {
		if _, err := keys.ParseAlgorithm(m.RequestObjectSigningAlg); err != nil {
			return oautherrors.InvalidClientMetadata("request_object_signing_alg: %s", err.Error())
		}
	}

	var authAlg keys.Algorithm
	if m.TokenEndpointAuthSigningAlg != "" {
		if authAlg, err = keys.ParseAlgorithm(m.TokenEndpointAuthSigningAlg); err != nil {
			return oautherrors.InvalidClientMetadata("token_endpoint_auth_signing_alg: %s", err.Error())
		}
	}
	switch m.TokenEndpointAuthMethod {
	case AuthMethodClientSecretJWT:
		if authAlg != "" && !authAlg.IsSymmetric() {
			return oautherrors.InvalidClientMetadata("client_secret_jwt needs an HS token_endpoint_auth_signing_alg")
		}
	case AuthMethodPrivateKeyJWT:
		if authAlg != "" && authAlg.IsSymmetric() {
			return oautherrors.InvalidClientMetadata("private_key_jwt needs an asymmetric token_endpoint_auth_signing_alg")
		}
		if m.JWKSURI == "" && len(m.JWKS) == 0 {
			return oautherrors.InvalidClientMetadata("private_key_jwt needs jwks or jwks_uri")
		}
	}
	return nil
}

func validateAbsoluteURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if !u.IsAbs() || (isHTTP(u.Scheme) && u.Host == "") {
		return errors.New("must be an absolute URI")
	}
	if strings.Contains(raw, "#") {
		return errors.New("must not contain a fragment")
	}
	return nil
}

func isHTTP(scheme string) bool {
	return scheme == "http" || scheme == "https"
}

func redirectHosts(uris []string) []string {
	hosts := make([]string, 0, len(uris))
	for _, uri := range uris {
		hosts = append(hosts, hostOf(uri))
	}
	return utils.Dedupe(hosts)
}
