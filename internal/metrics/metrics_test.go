package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Registration("register", nil)
	m.Registration("register", errors.New("boom"))
	m.TokenIssued("password", "access_token")
	m.TokenIssued("password", "access_token")
	m.LogoutNotification("backchannel", nil)
	m.Introspection(false)
	m.SessionTerminated()

	require.Equal(t, 1.0, testutil.ToFloat64(m.registrations.WithLabelValues("register", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.registrations.WithLabelValues("register", "error")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.tokensIssued.WithLabelValues("password", "access_token")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.logoutNotifications.WithLabelValues("backchannel", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.introspections.WithLabelValues("false")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.sessionsTerminated))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.TokenIssued("password", "access_token")
	m.HTTPRequest("GET", "/jwks", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.HTTPRequest("POST", "/token", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `oidc_http_requests_total{method="POST",route="/token",status="200"} 1`))
}
