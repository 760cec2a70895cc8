package auth

import (
	"context"

	"github.com/jrsteele09/go-oidc-server/clients"
	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/jrsteele09/go-oidc-server/internal/utils"
	"github.com/jrsteele09/go-oidc-server/oauth2"
	"github.com/jrsteele09/go-oidc-server/token"
	"github.com/pkg/errors"
)

// Caller authenticates a call to the introspection endpoint: either client
// credentials or an active bearer access token.
type Caller struct {
	Credentials clients.Credentials
	BearerToken string
}

func (as *AuthorizationService) authenticateCaller(ctx context.Context, caller Caller) error {
	if caller.BearerToken != "" {
		_, err := as.tokens.ValidateAccessToken(ctx, caller.BearerToken)
		return err
	}
	_, err := as.clients.AuthenticateClient(ctx, caller.Credentials)
	return err
}

// Introspect answers RFC 7662 introspection. Unknown, expired and revoked
// tokens are reported as inactive, never as errors.
func (as *AuthorizationService) Introspect(ctx context.Context, caller Caller, value string) (*oauth2.IntrospectionResponse, error) {
	if err := as.authenticateCaller(ctx, caller); err != nil {
		return nil, err
	}
	t, active := as.tokens.Introspect(ctx, value)
	if !active {
		return &oauth2.IntrospectionResponse{Active: false}, nil
	}

	resp := &oauth2.IntrospectionResponse{
		Active:    true,
		Scope:     scopeString(t.Scopes),
		ClientID:  t.ClientID,
		TokenType: string(t.Type),
		Exp:       t.ExpiresAt.Unix(),
		Iat:       t.IssuedAt.Unix(),
		Sub:       t.PublicSubject,
		Aud:       t.ClientID,
		Iss:       as.tokens.Issuer(),
	}
	if t.Type == token.TypeAccess {
		resp.TokenType = bearerTokenType
	}
	if t.Subject != "" {
		if user, err := as.repos.Users.GetByID(t.Subject); err == nil {
			resp.Username = user.Username
		}
	}
	return resp, nil
}

// Revoke implements RFC 7009. Unknown tokens succeed; tokens of another client are refused.
func (as *AuthorizationService) Revoke(ctx context.Context, credentials clients.Credentials, value string) error {
	client, err := as.clients.AuthenticateClient(ctx, credentials)
	if err != nil {
		return err
	}
	if value == "" {
		return oautherrors.InvalidRequest("token is required")
	}
	t, err := as.tokens.Lookup(ctx, value)
	if err != nil {
		if oautherrors.Is(err, oautherrors.ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "[AuthorizationService.Revoke]")
	}
	if t.ClientID != client.ID {
		return oautherrors.UnauthorizedClient("token was issued to another client")
	}
	return as.tokens.Revoke(ctx, value)
}

// ClientInfo describes the client an access token was issued to.
func (as *AuthorizationService) ClientInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	t, err := as.tokens.ValidateAccessToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	client, err := as.clients.Get(ctx, t.ClientID)
	if err != nil {
		if oautherrors.Is(err, oautherrors.ErrNotFound) {
			return nil, oautherrors.InvalidToken("client no longer exists")
		}
		return nil, errors.Wrap(err, "[AuthorizationService.ClientInfo]")
	}

	info := map[string]any{
		"client_id":                  client.ID,
		"application_type":           client.ApplicationType,
		"redirect_uris":              client.RedirectURIs,
		"grant_types":                client.GrantTypes,
		"response_types":             client.ResponseTypes,
		"token_endpoint_auth_method": client.TokenEndpointAuthMethod,
		"subject_type":               client.SubjectType,
		"scope":                      client.Scope,
	}
	optional := map[string]string{
		"client_name": client.ClientName,
		"client_uri":  client.ClientURI,
		"logo_uri":    client.LogoURI,
		"policy_uri":  client.PolicyURI,
		"tos_uri":     client.TOSURI,
	}
	for k, v := range optional {
		if v != "" {
			info[k] = v
		}
	}
	if len(client.Contacts) > 0 {
		info["contacts"] = client.Contacts
	}
	for k, v := range client.CustomAttributes {
		if _, taken := info[k]; !taken {
			info[k] = v
		}
	}
	return info, nil
}

// UserInfo returns the claims of the end-user an access token was issued for,
// limited to the granted scopes.
func (as *AuthorizationService) UserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	t, err := as.tokens.ValidateAccessToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if t.Subject == "" {
		return nil, oautherrors.InvalidToken("access token is not bound to an end-user")
	}
	if !utils.Contains(t.Scopes, "openid") {
		return nil, oautherrors.InvalidToken("openid scope was not granted")
	}
	user, err := as.repos.Users.GetByID(t.Subject)
	if err != nil {
		if oautherrors.Is(err, oautherrors.ErrNotFound) {
			return nil, oautherrors.InvalidToken("end-user no longer exists")
		}
		return nil, errors.Wrap(err, "[AuthorizationService.UserInfo]")
	}
	if user.Blocked {
		return nil, oautherrors.InvalidToken("end-user is blocked")
	}

	claims := user.Claims(t.Scopes)
	if claims == nil {
		claims = map[string]any{}
	}
	claims["sub"] = t.PublicSubject
	return claims, nil
}
