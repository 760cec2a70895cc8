package token

import (
	"time"
)

// Type distinguishes the three token kinds held by the store.
type Type string

const (
	TypeAccess  Type = "access_token"
	TypeRefresh Type = "refresh_token"
	TypeID      Type = "id_token"
)

// Token is the server-side record of an issued token. Access and refresh
// tokens are opaque random values; ID tokens are stored as their compact JWS.
// Active is the single authoritative state consulted by introspection and only
// ever moves from true to false.
type Token struct {
	Value         string    `json:"value"`
	Type          Type      `json:"type"`
	ClientID      string    `json:"client_id"`
	Subject       string    `json:"subject,omitempty"`        // local user id, empty for client_credentials
	PublicSubject string    `json:"public_subject,omitempty"` // sub as seen by the client (pairwise or public)
	Scopes        []string  `json:"scopes,omitempty"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	Audience      []string  `json:"audience,omitempty"`
	SigningAlg    string    `json:"signing_alg,omitempty"`
	Active        bool      `json:"active"`
	GrantID       string    `json:"grant_id,omitempty"`
	GrantType     string    `json:"grant_type,omitempty"`
	SessionID     string    `json:"session_id,omitempty"`
	Sid           string    `json:"sid,omitempty"`
	AuthTime      time.Time `json:"auth_time,omitempty"`
}

// IsActive reports whether the token is usable at now.
func (t *Token) IsActive(now time.Time) bool {
	return t != nil && t.Active && now.Before(t.ExpiresAt)
}

// TTL is the remaining lifetime at now, never negative.
func (t *Token) TTL(now time.Time) time.Duration {
	if d := t.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
