package clients

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/jrsteele09/go-oidc-server/oauth2"
	"github.com/jrsteele09/go-oidc-server/token/keys"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Credentials are the client authentication inputs of one request, as presented.
type Credentials struct {
	ClientID     string
	ClientSecret string
	// Basic marks credentials taken from an Authorization: Basic header.
	Basic         bool
	AssertionType string
	Assertion     string
}

// AuthenticateClient authenticates a caller with the method its registration
// names. Every failure is invalid_client.
func (r *Registry) AuthenticateClient(ctx context.Context, cred Credentials) (*Client, error) {
	if cred.Assertion != "" || cred.AssertionType != "" {
		return r.authenticateAssertion(ctx, cred)
	}
	if cred.ClientID == "" {
		return nil, oautherrors.InvalidClient("client authentication is required")
	}
	c, err := r.lookupForAuthentication(cred.ClientID)
	if err != nil {
		return nil, err
	}

	switch c.TokenEndpointAuthMethod {
	case AuthMethodNone:
		return c, nil
	case AuthMethodClientSecretBasic:
		if !cred.Basic {
			return nil, oautherrors.InvalidClient("client must authenticate with client_secret_basic")
		}
	case AuthMethodClientSecretPost:
		if cred.Basic {
			return nil, oautherrors.InvalidClient("client must authenticate with client_secret_post")
		}
	default:
		return nil, oautherrors.InvalidClient("client must authenticate with a %s assertion", c.TokenEndpointAuthMethod)
	}
	if !constantTimeEqual(c.Secret, cred.ClientSecret) {
		return nil, oautherrors.InvalidClient("client authentication failed")
	}
	return c, nil
}

func (r *Registry) lookupForAuthentication(clientID string) (*Client, error) {
	c, err := r.repo.Get(clientID)
	if err != nil {
		if oautherrors.Is(err, oautherrors.ErrNotFound) {
			return nil, oautherrors.InvalidClient("client authentication failed")
		}
		return nil, errors.Wrap(err, "[Registry.AuthenticateClient]")
	}
	return c, nil
}

// authenticateAssertion handles client_secret_jwt and private_key_jwt. The
// assertion must name the client as iss and sub, target the token endpoint,
// carry exp and a jti that has not been seen before.
func (r *Registry) authenticateAssertion(ctx context.Context, cred Credentials) (*Client, error) {
	if cred.AssertionType != oauth2.ClientAssertionTypeJWTBearer {
		return nil, oautherrors.InvalidClient("unsupported client_assertion_type")
	}
	alg, _, err := keys.HeaderAlgorithm(cred.Assertion)
	if err != nil {
		return nil, oautherrors.InvalidClient("malformed client assertion")
	}
	unverified := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(cred.Assertion, unverified); err != nil {
		return nil, oautherrors.InvalidClient("malformed client assertion")
	}
	sub, _ := unverified.GetSubject()
	if sub == "" || (cred.ClientID != "" && cred.ClientID != sub) {
		return nil, oautherrors.InvalidClient("client assertion subject does not identify the client")
	}

	c, err := r.lookupForAuthentication(sub)
	if err != nil {
		return nil, err
	}
	ref, err := c.KeyRef()
	if err != nil {
		return nil, oautherrors.InvalidClient("client keys are unusable")
	}
	switch c.TokenEndpointAuthMethod {
	case AuthMethodClientSecretJWT:
		if !alg.IsSymmetric() {
			return nil, oautherrors.InvalidClient("client_secret_jwt assertions must use an HS algorithm")
		}
		ref = keys.KeyRef{Secret: ref.Secret}
	case AuthMethodPrivateKeyJWT:
		if alg.IsSymmetric() {
			return nil, oautherrors.InvalidClient("private_key_jwt assertions must use an asymmetric algorithm")
		}
		if ref.JWKS == nil && ref.JWKSURI == "" {
			return nil, oautherrors.InvalidClient("client has no registered keys")
		}
		ref.Secret = nil
	default:
		return nil, oautherrors.InvalidClient("client is not registered for assertion authentication")
	}
	if c.TokenEndpointAuthSigningAlg != "" && string(alg) != c.TokenEndpointAuthSigningAlg {
		return nil, oautherrors.InvalidClient("client assertion must be signed with %s", c.TokenEndpointAuthSigningAlg)
	}

	opts := []jwt.ParserOption{
		jwt.WithIssuer(c.ID),
		jwt.WithSubject(c.ID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.nowFunc),
	}
	if r.tokenEndpoint != "" {
		opts = append(opts, jwt.WithAudience(r.tokenEndpoint))
	}
	claims, err := r.provider.Verify(ctx, cred.Assertion, alg, ref, opts...)
	if err != nil {
		log.Debug().Err(err).Str("client_id", c.ID).Msg("client assertion rejected")
		return nil, oautherrors.InvalidClient("client assertion is invalid")
	}

	jti, _ := claims["jti"].(string)
	if jti == "" {
		return nil, oautherrors.InvalidClient("client assertion has no jti")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, oautherrors.InvalidClient("client assertion has no exp")
	}
	first, err := r.replay.Mark(ctx, c.ID+":"+jti, exp.Time)
	if err != nil {
		return nil, errors.Wrap(err, "[Registry.authenticateAssertion] replay cache")
	}
	if !first {
		return nil, oautherrors.InvalidClient("client assertion has already been used")
	}
	return c, nil
}
