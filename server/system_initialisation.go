package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/jrsteele09/go-oidc-server/users"
	"github.com/rs/zerolog/log"
)

// InitialiseSystem makes sure an administrative end-user exists so a fresh
// deployment can complete a login. When no password is configured a random one
// is generated and logged once.
func (s *Server) InitialiseSystem(_ context.Context) error {
	username := s.config.GetAdminUser()
	if username == "" {
		return nil
	}

	_, err := s.users.GetByUsername(username)
	switch {
	case err == nil:
		log.Debug().Str("username", username).Msg("[server InitialiseSystem] admin user already exists")
		return nil
	case !oautherrors.Is(err, oautherrors.ErrNotFound):
		return fmt.Errorf("[server InitialiseSystem] failed to look up admin user: %w", err)
	}

	generatedPassword, err := s.createAdmin(username, s.config.GetAdminPassword())
	if err != nil {
		return fmt.Errorf("[server InitialiseSystem] failed to create admin user: %w", err)
	}

	event := log.Info().
		Str("issuer", s.issuer).
		Str("username", username).
		Str("discovery", s.endpoint(RouteWellKnownOpenIDConfig))
	if generatedPassword != "" {
		event = event.Str("password", generatedPassword)
	}
	event.Msg("admin user created")
	return nil
}

// createAdmin stores the admin user. It returns the password only when one was generated.
func (s *Server) createAdmin(username, password string) (generatedPassword string, err error) {
	if password == "" {
		passwordBytes := make([]byte, 16)
		if _, err := rand.Read(passwordBytes); err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		password = base64.RawURLEncoding.EncodeToString(passwordBytes)
		generatedPassword = password
	}

	passwordHash, err := users.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &users.User{
		Email:        generateEmailFromIssuer(username, s.issuer),
		Username:     username,
		PasswordHash: passwordHash,
		FirstName:    "System",
		LastName:     "Administrator",
		DateJoined:   time.Now(),
		Verified:     true,
	}
	if err := s.users.Upsert(admin); err != nil {
		return "", err
	}
	return generatedPassword, nil
}

// generateEmailFromIssuer creates an address at the issuer's host.
// Example: ("admin", "https://op.example.com:8443/oidc") -> "admin@op.example.com"
func generateEmailFromIssuer(user, issuer string) string {
	domain := strings.TrimPrefix(strings.TrimPrefix(issuer, "https://"), "http://")
	domain = strings.SplitN(domain, "/", 2)[0]
	domain = strings.SplitN(domain, ":", 2)[0]
	if domain == "" {
		domain = "localhost"
	}
	return fmt.Sprintf("%s@%s", user, domain)
}
