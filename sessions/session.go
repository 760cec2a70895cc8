package sessions

import (
	"time"

	"github.com/jrsteele09/go-oidc-server/internal/utils"
)

// State is the lifecycle position of a browser session.
type State string

const (
	StateNone          State = "none"
	StateAuthenticated State = "authenticated"
	StateSSOExtended   State = "sso_extended" // more than one client joined
	StateTerminated    State = "terminated"
)

// Session is an authenticated browser session. ID is the secret cookie value;
// Sid is the public identifier embedded in ID tokens and logout tokens.
// Terminated sessions are kept until they expire so that repeated end-session
// calls still recognise them.
type Session struct {
	ID                   string    `json:"id"`
	Sid                  string    `json:"sid"`
	Subject              string    `json:"subject"`
	State                State     `json:"state"`
	AuthenticatedClients []string  `json:"authenticated_clients,omitempty"`
	AuthTime             time.Time `json:"auth_time"`
	CreatedAt            time.Time `json:"created_at"`
	ExpiresAt            time.Time `json:"expires_at"`
	TerminatedAt         time.Time `json:"terminated_at,omitempty"`
}

func (s *Session) IsActive(now time.Time) bool {
	return s != nil && s.State != StateTerminated && s.State != StateNone && now.Before(s.ExpiresAt)
}

func (s *Session) HasClient(clientID string) bool {
	return utils.Contains(s.AuthenticatedClients, clientID)
}

func (s *Session) Clone() *Session {
	c := *s
	c.AuthenticatedClients = append([]string(nil), s.AuthenticatedClients...)
	return &c
}
