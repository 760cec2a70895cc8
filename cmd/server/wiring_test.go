package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-oidc-server/internal/boltstore"
	"github.com/jrsteele09/go-oidc-server/internal/config"
	"github.com/jrsteele09/go-oidc-server/internal/redisstore"
	"github.com/jrsteele09/go-oidc-server/server"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func setupTestFixture(t *testing.T, settings map[string]any) config.Config {
	t.Helper()
	v := viper.New()
	v.Set("env", "TEST")
	v.Set("signing_algorithms", "RS256,HS256")
	v.Set("admin_password", "Password123")
	for k, val := range settings {
		v.Set(k, val)
	}
	return config.New(v)
}

func TestWire(t *testing.T) {
	t.Run("memory backends", func(t *testing.T) {
		app, err := wire(context.Background(), setupTestFixture(t, nil))
		require.NoError(t, err)
		t.Cleanup(app.close)
		require.NotNil(t, app.storage.sweep)

		ts := httptest.NewServer(app.handler)
		t.Cleanup(ts.Close)
		resp, err := http.Get(ts.URL + server.RouteWellKnownOpenIDConfig)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		app.sweep(context.Background(), time.Now())
	})

	t.Run("redis and bolt backends", func(t *testing.T) {
		mr := miniredis.RunT(t)
		path := filepath.Join(t.TempDir(), "clients.db")
		app, err := wire(context.Background(), setupTestFixture(t, map[string]any{
			"storage_backend": "redis",
			"redis_url":       "redis://" + mr.Addr() + "/0",
			"client_store":    "bolt",
			"bolt_path":       path,
		}))
		require.NoError(t, err)
		require.Nil(t, app.storage.sweep)
		require.IsType(t, &redisstore.TokenRepo{}, app.storage.tokens)
		require.IsType(t, &boltstore.ClientRepo{}, app.storage.clients)

		app.sweep(context.Background(), time.Now())
		app.close()

		// The bolt file lock is released on close.
		repo, err := boltstore.Open(path)
		require.NoError(t, err)
		require.NoError(t, repo.Close())
	})

	t.Run("unknown backends", func(t *testing.T) {
		_, err := wire(context.Background(), setupTestFixture(t, map[string]any{"storage_backend": "etcd"}))
		require.ErrorContains(t, err, "unknown storage backend")

		_, err = wire(context.Background(), setupTestFixture(t, map[string]any{"client_store": "postgres"}))
		require.ErrorContains(t, err, "unknown client store")
	})

	t.Run("invalid settings", func(t *testing.T) {
		_, err := wire(context.Background(), setupTestFixture(t, map[string]any{"default_id_token_alg": "none"}))
		require.Error(t, err)

		_, err = wire(context.Background(), setupTestFixture(t, map[string]any{"registration_update_policy": "sometimes"}))
		require.Error(t, err)
	})
}

func TestNewRootCmd_BindsFlags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{configFileFlag, portFlag, logLevelFlag, storageBackendFlag, clientStoreFlag} {
		require.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}
