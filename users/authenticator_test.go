package users_test

import (
	"context"
	"testing"

	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/jrsteele09/go-oidc-server/users"
	fakeuserrepo "github.com/jrsteele09/go-oidc-server/users/repofake"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	repo *fakeuserrepo.FakeUserRepo
	user *users.User
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	hash, err := users.HashPassword("Secret123")
	require.NoError(t, err)

	f := &testFixture{repo: fakeuserrepo.NewFakeUserRepo()}
	f.user = &users.User{
		Email:        "jane@example.com",
		Username:     "jane",
		PasswordHash: hash,
		FirstName:    "Jane",
		LastName:     "Doe",
		Verified:     true,
		Attributes:   map[string]string{"inum": "A1B2"},
	}
	require.NoError(t, f.repo.Upsert(f.user))
	require.NoError(t, f.repo.Upsert(&users.User{Username: "blocked", PasswordHash: hash, Blocked: true}))
	return f
}

func TestAuthenticatePassword(t *testing.T) {
	f := setupTestFixture(t)
	a := users.NewAuthenticator(f.repo)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		valid    bool
	}{
		{"username", "jane", "Secret123", true},
		{"email", "jane@example.com", "Secret123", true},
		{"wrong password", "jane", "secret123", false},
		{"unknown user", "john", "Secret123", false},
		{"blocked user", "blocked", "Secret123", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := a.AuthenticatePassword(ctx, tt.username, tt.password)
			if !tt.valid {
				require.ErrorIs(t, err, users.ErrInvalidCredentials)
				return
			}
			require.NoError(t, err)
			require.Equal(t, f.user.ID, u.ID)
			require.False(t, u.LastLogin.IsZero())
		})
	}
}

func TestAuthenticateCustom(t *testing.T) {
	f := setupTestFixture(t)
	a := users.NewAuthenticator(f.repo, users.WithCustomParams([]string{"mail", "inum"}))
	ctx := context.Background()

	u, ok, err := a.AuthenticateCustom(ctx, map[string]string{"mail": "jane@example.com", "inum": "A1B2"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, f.user.ID, u.ID)

	_, ok, err = a.AuthenticateCustom(ctx, map[string]string{"mail": "jane@example.com", "inum": "WRONG"})
	require.True(t, ok)
	require.ErrorIs(t, err, users.ErrInvalidCredentials)

	_, ok, err = a.AuthenticateCustom(ctx, map[string]string{"mail": "jane@example.com"})
	require.NoError(t, err)
	require.False(t, ok)

	plain := users.NewAuthenticator(f.repo)
	_, ok, err = plain.AuthenticateCustom(ctx, map[string]string{"mail": "jane@example.com", "inum": "A1B2"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAuthenticateCustom_ExactMatchOnly(t *testing.T) {
	f := setupTestFixture(t)
	a := users.NewAuthenticator(f.repo, users.WithCustomParams([]string{"mail", "inum"}))
	ctx := context.Background()

	tests := []struct {
		name string
		inum string
	}{
		{name: "prefix", inum: "A1B"},
		{name: "longer", inum: "A1B2C"},
		{name: "case differs", inum: "a1b2"},
		{name: "trailing space", inum: "A1B2 "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok, err := a.AuthenticateCustom(ctx, map[string]string{"mail": "jane@example.com", "inum": tt.inum})
			require.True(t, ok)
			require.ErrorIs(t, err, users.ErrInvalidCredentials)
		})
	}

	t.Run("every attribute must match", func(t *testing.T) {
		_, ok, err := a.AuthenticateCustom(ctx, map[string]string{"mail": "john@example.com", "inum": "A1B2"})
		require.True(t, ok)
		require.ErrorIs(t, err, users.ErrInvalidCredentials)
	})
}

func TestClaims(t *testing.T) {
	f := setupTestFixture(t)

	claims := f.user.Claims([]string{"openid", "profile", "email"})
	require.Equal(t, "Jane Doe", claims["name"])
	require.Equal(t, "Jane", claims["given_name"])
	require.Equal(t, "jane", claims["preferred_username"])
	require.Equal(t, "jane@example.com", claims["email"])
	require.Equal(t, true, claims["email_verified"])

	require.Empty(t, f.user.Claims([]string{"openid"}))
}

func TestValidatePasswordStrength(t *testing.T) {
	require.NoError(t, users.ValidatePasswordStrength("Secret123"))
	require.Error(t, users.ValidatePasswordStrength("short1A"))
	require.Error(t, users.ValidatePasswordStrength("alllowercase1"))
	require.Error(t, users.ValidatePasswordStrength("NoNumbersHere"))
}

func TestFakeRepoNotFound(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.repo.GetByUsername("nobody")
	require.ErrorIs(t, err, oautherrors.ErrNotFound)
}
