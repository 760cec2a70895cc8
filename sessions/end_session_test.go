package sessions_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jrsteele09/go-oidc-server/clients"
	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/jrsteele09/go-oidc-server/sessions"
	"github.com/stretchr/testify/require"
)

func TestEndSession_HintWithUnknownSid(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	c := f.registerClient(t, clients.Metadata{PostLogoutRedirectURIs: []string{"https://rp.example.com/logged-out"}})
	unknown := &sessions.Session{Subject: "user-1", Sid: "sid-of-no-session", AuthTime: time.Now()}

	t.Run("rejected without a cookie", func(t *testing.T) {
		res, err := f.coordinator.EndSession(ctx, sessions.EndSessionRequest{
			IDTokenHint:           f.idTokenHint(t, c, unknown),
			PostLogoutRedirectURI: "https://rp.example.com/logged-out",
			State:                 "s1",
		})
		require.Nil(t, res)
		oe, ok := oautherrors.AsOAuth(err)
		require.True(t, ok)
		require.Equal(t, oautherrors.CodeInvalidRequest, oe.Code)
		require.Equal(t, http.StatusBadRequest, oe.Status)
	})

	t.Run("rejected with a stale cookie", func(t *testing.T) {
		_, err := f.coordinator.EndSession(ctx, sessions.EndSessionRequest{
			IDTokenHint: f.idTokenHint(t, c, unknown),
			SessionID:   "no-such-session",
		})
		oe, ok := oautherrors.AsOAuth(err)
		require.True(t, ok)
		require.Equal(t, oautherrors.CodeInvalidRequest, oe.Code)
	})

	t.Run("terminated session still recognised", func(t *testing.T) {
		s := f.login(t, "user-1", c)
		req := sessions.EndSessionRequest{
			IDTokenHint:           f.idTokenHint(t, c, s),
			PostLogoutRedirectURI: "https://rp.example.com/logged-out",
		}
		first, err := f.coordinator.EndSession(ctx, req)
		require.NoError(t, err)
		require.Equal(t, s.ID, first.Session.ID)

		again, err := f.coordinator.EndSession(ctx, req)
		require.NoError(t, err)
		require.Equal(t, sessions.StateTerminated, again.Session.State)
		require.Equal(t, first.RedirectURI, again.RedirectURI)
	})
}
