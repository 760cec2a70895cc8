package auth

import (
	"context"
	"time"

	"github.com/jrsteele09/go-oidc-server/oauth2"
	"github.com/jrsteele09/go-oidc-server/oauthmodel"
)

// AuthorizationCode is the server-side record behind an authorization code.
type AuthorizationCode struct {
	Code                string                `json:"code"`
	GrantID             string                `json:"grant_id"`
	ClientID            string                `json:"client_id"`
	RedirectURI         string                `json:"redirect_uri,omitempty"` // as sent in the authorization request
	Subject             string                `json:"subject"`
	PublicSubject       string                `json:"public_subject"`
	Scopes              []string              `json:"scopes,omitempty"`
	Nonce               string                `json:"nonce,omitempty"`
	CodeChallenge       string                `json:"code_challenge,omitempty"`
	CodeChallengeMethod oauth2.CodeMethodType `json:"code_challenge_method,omitempty"`
	SessionID           string                `json:"session_id,omitempty"`
	Sid                 string                `json:"sid,omitempty"`
	AuthTime            time.Time             `json:"auth_time"`
	ExpiresAt           time.Time             `json:"expires_at"`
}

// CodeRepo stores authorization codes.
//
// Consume must be atomic: of any number of concurrent calls for one code,
// exactly one returns the record with a nil error. Consumed codes are kept as
// tombstones until they expire; consuming one again returns the record together
// with errors.ErrCodeConsumed so the tokens minted from it can be revoked.
// Unknown codes return errors.ErrNotFound.
type CodeRepo interface {
	Put(ctx context.Context, code *AuthorizationCode) error
	Consume(ctx context.Context, code string) (*AuthorizationCode, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// PendingRequest is an authorization request parked while the end-user logs in.
type PendingRequest struct {
	ID        string                              `json:"id"`
	Params    *oauthmodel.AuthorizationParameters `json:"params"`
	ExpiresAt time.Time                           `json:"expires_at"`
}

// RequestRepo stores pending authorization requests for the login hand-off.
type RequestRepo interface {
	Put(ctx context.Context, req *PendingRequest) error
	Get(ctx context.Context, id string) (*PendingRequest, error)
	Delete(ctx context.Context, id string) error
}
