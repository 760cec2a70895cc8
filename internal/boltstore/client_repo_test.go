package boltstore_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-oidc-server/clients"
	"github.com/jrsteele09/go-oidc-server/internal/boltstore"
	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/jrsteele09/go-oidc-server/token/keys"
	"github.com/stretchr/testify/require"
)

func setupTestFixture(t *testing.T) (*boltstore.ClientRepo, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "clients.db")
	repo, err := boltstore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo, path
}

func testClient(id string) *clients.Client {
	return &clients.Client{
		ID:                      id,
		Secret:                  "secret-" + id,
		IDIssuedAt:              1700000000,
		RegistrationAccessToken: "rat-" + id,
		Metadata: clients.Metadata{
			RedirectURIs:            []string{"https://rp.example.com/callback"},
			GrantTypes:              []string{"authorization_code", "refresh_token"},
			ResponseTypes:           []string{"code"},
			TokenEndpointAuthMethod: clients.AuthMethodClientSecretBasic,
			BackchannelLogoutURIs:   clients.StringList{"https://rp.example.com/bc"},
			Scope:                   "openid profile",
		},
	}
}

func TestClientRepo_CRUD(t *testing.T) {
	repo, _ := setupTestFixture(t)

	_, err := repo.Get("missing")
	require.True(t, oautherrors.Is(err, oautherrors.ErrNotFound))

	require.NoError(t, repo.Upsert(testClient("client-1")))
	got, err := repo.Get("client-1")
	require.NoError(t, err)
	require.Equal(t, "secret-client-1", got.Secret)
	require.Equal(t, "rat-client-1", got.RegistrationAccessToken)
	require.Equal(t, clients.StringList{"https://rp.example.com/bc"}, got.BackchannelLogoutURIs)
	require.Equal(t, clients.AuthMethodClientSecretBasic, got.TokenEndpointAuthMethod)

	updated := testClient("client-1")
	updated.ClientName = "Renamed"
	require.NoError(t, repo.Upsert(updated))
	got, err = repo.Get("client-1")
	require.NoError(t, err)
	require.Equal(t, "Renamed", got.ClientName)

	require.NoError(t, repo.Delete("client-1"))
	_, err = repo.Get("client-1")
	require.True(t, oautherrors.Is(err, oautherrors.ErrNotFound))

	require.Error(t, repo.Upsert(&clients.Client{}))
}

func TestClientRepo_List(t *testing.T) {
	repo, _ := setupTestFixture(t)
	for i := 4; i >= 0; i-- {
		require.NoError(t, repo.Upsert(testClient(fmt.Sprintf("client-%d", i))))
	}

	all, err := repo.List(0, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, "client-0", all[0].ID)
	require.Equal(t, "client-4", all[4].ID)

	page, err := repo.List(1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "client-1", page[0].ID)
	require.Equal(t, "client-2", page[1].ID)

	empty, err := repo.List(10, 2)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestClientRepo_SurvivesReopen(t *testing.T) {
	repo, path := setupTestFixture(t)
	require.NoError(t, repo.Upsert(testClient("client-1")))
	require.NoError(t, repo.Close())

	reopened, err := boltstore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.Get("client-1")
	require.NoError(t, err)
	require.Equal(t, "secret-client-1", got.Secret)

	version, err := reopened.SchemaVersion()
	require.NoError(t, err)
	require.Equal(t, uint64(1), version)
}

func TestClientRepo_BacksRegistry(t *testing.T) {
	repo, _ := setupTestFixture(t)
	ks, err := keys.NewKeystore([]keys.Algorithm{keys.RS256})
	require.NoError(t, err)
	provider, err := keys.NewProvider(ks, nil)
	require.NoError(t, err)
	registry, err := clients.NewRegistry(repo, provider,
		clients.WithEndpoints("https://op.example.com/register", "https://op.example.com/token"))
	require.NoError(t, err)

	ctx := context.Background()
	c, err := registry.Register(ctx, &clients.Metadata{RedirectURIs: []string{"https://rp.example.com/callback"}})
	require.NoError(t, err)

	read, err := registry.Read(ctx, c.ID, c.RegistrationAccessToken)
	require.NoError(t, err)
	require.Equal(t, c.ID, read.ID)

	authenticated, err := registry.AuthenticateClient(ctx, clients.Credentials{ClientID: c.ID, ClientSecret: c.Secret, Basic: true})
	require.NoError(t, err)
	require.Equal(t, c.ID, authenticated.ID)
}
