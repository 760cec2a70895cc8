package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-oidc-server/clients"
	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/jrsteele09/go-oidc-server/internal/utils"
	"github.com/jrsteele09/go-oidc-server/oauth2"
	"github.com/jrsteele09/go-oidc-server/oauthmodel"
	"github.com/jrsteele09/go-oidc-server/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Token handles a token endpoint request. Every failure is an *errors.Error
// rendered as a 400 JSON body, or an internal error.
func (as *AuthorizationService) Token(ctx context.Context, req oauthmodel.TokenRequest) (*oauth2.TokenResponse, error) {
	if req.GrantType == "" {
		return nil, oautherrors.InvalidRequest("grant_type is required")
	}
	client, err := as.clients.AuthenticateClient(ctx, req.Credentials)
	if err != nil {
		return nil, err
	}

	switch req.GrantType {
	case oauth2.AuthorizationCodeGrant, oauth2.PasswordGrant, oauth2.ClientCredentialsGrant, oauth2.RefreshTokenGrant:
	default:
		return nil, oautherrors.UnsupportedGrantType("grant_type %q is not supported", req.GrantType)
	}
	if !client.AllowsGrantType(req.GrantType) {
		return nil, oautherrors.UnauthorizedClient("client is not registered for grant_type %q", req.GrantType)
	}

	switch req.GrantType {
	case oauth2.AuthorizationCodeGrant:
		return as.authorizationCodeGrant(ctx, client, req)
	case oauth2.PasswordGrant:
		return as.passwordGrant(ctx, client, req)
	case oauth2.ClientCredentialsGrant:
		return as.clientCredentialsGrant(ctx, client, req)
	default:
		return as.refreshTokenGrant(ctx, client, req)
	}
}

func (as *AuthorizationService) authorizationCodeGrant(ctx context.Context, client *clients.Client, req oauthmodel.TokenRequest) (*oauth2.TokenResponse, error) {
	if req.Code == "" {
		return nil, oautherrors.InvalidRequest("code is required")
	}
	code, err := as.repos.Codes.Consume(ctx, req.Code)
	switch {
	case oautherrors.Is(err, oautherrors.ErrCodeConsumed):
		log.Warn().Str("client_id", client.ID).Str("grant_id", code.GrantID).Msg("authorization code replayed, revoking its tokens")
		if err := as.tokens.RevokeGrant(ctx, code.GrantID); err != nil {
			return nil, errors.Wrap(err, "[AuthorizationService.authorizationCodeGrant] revoking replayed grant")
		}
		return nil, oautherrors.InvalidGrant("authorization code was already used")
	case oautherrors.Is(err, oautherrors.ErrNotFound):
		return nil, oautherrors.InvalidGrant("authorization code is invalid")
	case err != nil:
		return nil, errors.Wrap(err, "[AuthorizationService.authorizationCodeGrant] consume")
	}

	if code.ClientID != client.ID {
		return nil, oautherrors.InvalidGrant("authorization code was issued to another client")
	}
	if !as.nowTime().Before(code.ExpiresAt) {
		return nil, oautherrors.InvalidGrant("authorization code is expired")
	}
	if code.RedirectURI != "" && code.RedirectURI != req.RedirectURI {
		return nil, oautherrors.InvalidGrant("redirect_uri does not match the authorization request")
	}
	if !checkCodeChallenge(code.CodeChallenge, req.CodeVerifier, code.CodeChallengeMethod) {
		return nil, oautherrors.InvalidGrant("code_verifier does not match the code_challenge")
	}

	return as.tokenResponse(ctx, client, token.Grant{
		ID:            code.GrantID,
		GrantType:     string(oauth2.AuthorizationCodeGrant),
		ClientID:      client.ID,
		Subject:       code.Subject,
		PublicSubject: code.PublicSubject,
		Scopes:        code.Scopes,
		SessionID:     code.SessionID,
		Sid:           code.Sid,
		AuthTime:      code.AuthTime,
	}, code.Nonce)
}

func (as *AuthorizationService) passwordGrant(ctx context.Context, client *clients.Client, req oauthmodel.TokenRequest) (*oauth2.TokenResponse, error) {
	user, supplied, err := as.authenticateUser(ctx, req.Login)
	if !supplied {
		return nil, oautherrors.InvalidRequest("username and password are required")
	}
	if err != nil {
		return nil, credentialsError(err, oautherrors.InvalidGrant)
	}
	return as.tokenResponse(ctx, client, token.Grant{
		ID:            uuid.New().String(),
		GrantType:     string(oauth2.PasswordGrant),
		ClientID:      client.ID,
		Subject:       user.ID,
		PublicSubject: client.SubjectFor(user.ID, as.pairwiseSalt),
		Scopes:        client.IntersectScopes(utils.SplitScopes(req.Scope)),
		AuthTime:      as.nowTime(),
	}, "")
}

func (as *AuthorizationService) clientCredentialsGrant(ctx context.Context, client *clients.Client, req oauthmodel.TokenRequest) (*oauth2.TokenResponse, error) {
	if client.IsPublic() {
		return nil, oautherrors.UnauthorizedClient("public clients cannot use client_credentials")
	}
	var scopes []string
	for _, s := range client.IntersectScopes(utils.SplitScopes(req.Scope)) {
		// no end-user, so nothing to identify or keep offline access for
		if s != "openid" && s != "offline_access" {
			scopes = append(scopes, s)
		}
	}
	return as.tokenResponse(ctx, client, token.Grant{
		ID:        uuid.New().String(),
		GrantType: string(oauth2.ClientCredentialsGrant),
		ClientID:  client.ID,
		Scopes:    scopes,
	}, "")
}

func (as *AuthorizationService) refreshTokenGrant(ctx context.Context, client *clients.Client, req oauthmodel.TokenRequest) (*oauth2.TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, oautherrors.InvalidRequest("refresh_token is required")
	}
	// a widening scope must not burn the refresh token
	if stored, err := as.tokens.Lookup(ctx, req.RefreshToken); err == nil && stored.ClientID == client.ID {
		if _, err := narrowScopes(stored.Scopes, req.Scope); err != nil {
			return nil, err
		}
	}
	old, err := as.tokens.RedeemRefreshToken(ctx, req.RefreshToken, client.ID)
	if err != nil {
		return nil, err
	}
	scopes, err := narrowScopes(old.Scopes, req.Scope)
	if err != nil {
		return nil, err
	}
	return as.tokenResponse(ctx, client, token.Grant{
		ID:            old.GrantID,
		GrantType:     string(oauth2.RefreshTokenGrant),
		ClientID:      client.ID,
		Subject:       old.Subject,
		PublicSubject: old.PublicSubject,
		Scopes:        scopes,
		SessionID:     old.SessionID,
		Sid:           old.Sid,
		AuthTime:      old.AuthTime,
	}, "")
}

// tokenResponse mints the access token, a refresh token when the client may use
// one and there is an end-user, and an ID token when openid was granted.
func (as *AuthorizationService) tokenResponse(ctx context.Context, client *clients.Client, grant token.Grant, nonce string) (*oauth2.TokenResponse, error) {
	at, err := as.tokens.IssueAccessToken(ctx, grant)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.tokenResponse] access token")
	}
	resp := &oauth2.TokenResponse{
		AccessToken: at.Value,
		TokenType:   bearerTokenType,
		ExpiresIn:   int(as.tokens.AccessTokenExpiry().Seconds()),
		Scope:       scopeString(grant.Scopes),
	}
	if grant.Subject == "" {
		return resp, nil
	}

	if client.AllowsGrantType(oauth2.RefreshTokenGrant) {
		rt, err := as.tokens.IssueRefreshToken(ctx, grant)
		if err != nil {
			return nil, errors.Wrap(err, "[AuthorizationService.tokenResponse] refresh token")
		}
		resp.RefreshToken = rt.Value
	}
	if utils.Contains(grant.Scopes, "openid") {
		idt, err := as.tokens.IssueIDToken(ctx, grant, token.IDTokenParams{
			Alg:         client.IDTokenAlg(),
			KeyRef:      client.SigningKeyRef(),
			Nonce:       nonce,
			AccessToken: at.Value,
		})
		if err != nil {
			return nil, errors.Wrap(err, "[AuthorizationService.tokenResponse] id token")
		}
		resp.IDToken = idt.Value
	}
	return resp, nil
}
