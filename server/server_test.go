package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-oidc-server/auth"
	fakecoderepo "github.com/jrsteele09/go-oidc-server/auth/repofakes"
	"github.com/jrsteele09/go-oidc-server/clients"
	fakeclientrepo "github.com/jrsteele09/go-oidc-server/clients/fakerepo"
	"github.com/jrsteele09/go-oidc-server/internal/config"
	"github.com/jrsteele09/go-oidc-server/internal/metrics"
	"github.com/jrsteele09/go-oidc-server/server"
	"github.com/jrsteele09/go-oidc-server/server/authflowrepo"
	"github.com/jrsteele09/go-oidc-server/sessions"
	fakesessionrepo "github.com/jrsteele09/go-oidc-server/sessions/repofakes"
	"github.com/jrsteele09/go-oidc-server/token"
	"github.com/jrsteele09/go-oidc-server/token/keys"
	tokenfakerepo "github.com/jrsteele09/go-oidc-server/token/repofake"
	fakeuserrepo "github.com/jrsteele09/go-oidc-server/users/repofake"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	testRedirectURI       = "https://rp.example.com/callback"
	testPostLogoutURI     = "https://rp.example.com/logged-out"
	testUsername          = "jdoe"
	testUserPassword      = "Password123"
	testAllowedOrigin     = "https://rp.example.com"
	testRegistrationAlias = "Example RP"
)

type testFixture struct {
	ts       *httptest.Server
	issuer   string
	registry *clients.Registry
	userRepo *fakeuserrepo.FakeUserRepo
	browser  *http.Client
}

// setupTestFixture starts the server on a real listener so the issuer matches
// the URL relying parties discover it at.
func setupTestFixture(t *testing.T, settings map[string]any) *testFixture {
	t.Helper()

	ts := httptest.NewUnstartedServer(nil)
	issuer := "http://" + ts.Listener.Addr().String()

	v := viper.New()
	v.Set("issuer", issuer)
	v.Set("env", "TEST")
	v.Set("admin_user", testUsername)
	v.Set("admin_password", testUserPassword)
	v.Set("allowed_origins", testAllowedOrigin)
	for k, val := range settings {
		v.Set(k, val)
	}
	cfg := config.New(v)

	ks, err := keys.NewKeystore([]keys.Algorithm{keys.RS256, keys.ES256, keys.HS256})
	require.NoError(t, err)
	provider, err := keys.NewProvider(ks, nil)
	require.NoError(t, err)
	mt := metrics.New()

	registry, err := clients.NewRegistry(fakeclientrepo.NewFakeClientRepo(), provider,
		clients.WithEndpoints(issuer+server.RouteRegister, issuer+server.RouteToken),
		clients.WithMetrics(mt))
	require.NoError(t, err)
	tokens := token.New(tokenfakerepo.NewFakeTokensRepo(), provider, token.WithIssuer(issuer), token.WithMetrics(mt))
	coordinator, err := sessions.NewCoordinator(fakesessionrepo.NewFakeSessionRepo(), registry, tokens, sessions.WithMetrics(mt))
	require.NoError(t, err)

	userRepo := fakeuserrepo.NewFakeUserRepo()
	service, err := auth.NewAuthorizationService(auth.Repos{
		Users:    userRepo,
		Codes:    fakecoderepo.NewFakeCodeRepo(),
		Requests: authflowrepo.NewInMemoryRepo(),
	}, registry, tokens, coordinator)
	require.NoError(t, err)

	srv, err := server.New(cfg, server.Services{
		Auth:     service,
		Clients:  registry,
		Sessions: coordinator,
		Keys:     provider,
		Users:    userRepo,
		Metrics:  mt,
	})
	require.NoError(t, err)

	ts.Config.Handler = srv
	ts.Start()
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testFixture{
		ts:       ts,
		issuer:   issuer,
		registry: registry,
		userRepo: userRepo,
		browser: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (f *testFixture) registerClient(t *testing.T, md clients.Metadata) *clients.Client {
	t.Helper()
	if len(md.RedirectURIs) == 0 {
		md.RedirectURIs = []string{testRedirectURI}
	}
	c, err := f.registry.Register(context.Background(), &md)
	require.NoError(t, err)
	return c
}

// navigate issues a browser request and returns the redirect location.
func (f *testFixture) navigate(t *testing.T, req *http.Request) *url.URL {
	t.Helper()
	resp, err := f.browser.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	location, err := resp.Location()
	require.NoError(t, err)
	return location
}

// signIn follows an authorization URL through the login hand-off and returns
// where the user agent is sent back to the client.
func (f *testFixture) signIn(t *testing.T, authURL string) *url.URL {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, authURL, nil)
	require.NoError(t, err)
	login := f.navigate(t, req)
	require.Equal(t, "/login", login.Path)
	requestID := login.Query().Get("request_id")
	require.NotEmpty(t, requestID)

	form := url.Values{"request_id": {requestID}, "username": {testUsername}, "password": {testUserPassword}}
	req, err = http.NewRequest(http.MethodPost, f.issuer+server.RouteLogin, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.navigate(t, req)
}

func (f *testFixture) postForm(t *testing.T, route string, form url.Values, basicID, basicSecret string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.issuer+route, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basicID != "" {
		req.SetBasicAuth(basicID, basicSecret)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

func TestNew_RequiresServices(t *testing.T) {
	_, err := server.New(config.New(nil), server.Services{})
	require.Error(t, err)
}

func TestInitialiseSystem_SeedsAdminOnce(t *testing.T) {
	f := setupTestFixture(t, nil)

	admin, err := f.userRepo.GetByUsername(testUsername)
	require.NoError(t, err)
	require.True(t, admin.Verified)
	require.True(t, strings.HasPrefix(admin.Email, testUsername+"@"))

	all, err := f.userRepo.List(0, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestDiscovery(t *testing.T) {
	f := setupTestFixture(t, nil)
	ctx := context.Background()

	t.Run("go-oidc discovers the provider", func(t *testing.T) {
		provider, err := oidc.NewProvider(ctx, f.issuer)
		require.NoError(t, err)
		require.Equal(t, f.issuer+server.RouteToken, provider.Endpoint().TokenURL)
		require.Equal(t, f.issuer+server.RouteAuthorize, provider.Endpoint().AuthURL)

		var doc struct {
			RegistrationEndpoint string   `json:"registration_endpoint"`
			EndSessionEndpoint   string   `json:"end_session_endpoint"`
			SigningAlgs          []string `json:"id_token_signing_alg_values_supported"`
			BackchannelLogout    bool     `json:"backchannel_logout_supported"`
		}
		require.NoError(t, provider.Claims(&doc))
		require.Equal(t, f.issuer+server.RouteRegister, doc.RegistrationEndpoint)
		require.Equal(t, f.issuer+server.RouteEndSession, doc.EndSessionEndpoint)
		require.ElementsMatch(t, []string{"RS256", "ES256", "HS256"}, doc.SigningAlgs)
		require.True(t, doc.BackchannelLogout)
	})

	t.Run("jwks holds only public keys", func(t *testing.T) {
		resp, err := http.Get(f.issuer + server.RouteJWKS)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var set struct {
			Keys []map[string]any `json:"keys"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&set))
		require.Len(t, set.Keys, 2)
		for _, k := range set.Keys {
			require.NotEmpty(t, k["kid"])
			require.NotContains(t, k, "d")
		}
	})
}

func TestRegistrationEndpoints(t *testing.T) {
	f := setupTestFixture(t, nil)

	body := `{"redirect_uris":["` + testRedirectURI + `"],"client_name":"` + testRegistrationAlias + `"}`
	resp, err := http.Post(f.issuer+server.RouteRegister, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var registered clients.Client
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&registered))
	require.NotEmpty(t, registered.ID)
	require.NotEmpty(t, registered.Secret)
	require.NotEmpty(t, registered.RegistrationAccessToken)
	require.Equal(t, f.issuer+server.RouteRegister+"?client_id="+url.QueryEscape(registered.ID), registered.RegistrationClientURI)

	management := func(method, token, payload string) *http.Response {
		req, err := http.NewRequest(method, registered.RegistrationClientURI, strings.NewReader(payload))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	t.Run("read", func(t *testing.T) {
		resp := management(http.MethodGet, registered.RegistrationAccessToken, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var read clients.Client
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&read))
		require.Equal(t, registered.ID, read.ID)
		require.Equal(t, testRegistrationAlias, read.ClientName)
	})

	t.Run("wrong registration token", func(t *testing.T) {
		resp := management(http.MethodGet, "not-the-token", "")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Contains(t, resp.Header.Get("WWW-Authenticate"), "Bearer")
	})

	t.Run("update", func(t *testing.T) {
		payload := `{"client_id":"` + registered.ID + `","redirect_uris":["` + testRedirectURI + `"],"client_name":"Renamed RP"}`
		resp := management(http.MethodPut, registered.RegistrationAccessToken, payload)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var updated clients.Client
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
		require.Equal(t, "Renamed RP", updated.ClientName)
	})

	t.Run("invalid metadata", func(t *testing.T) {
		resp, err := http.Post(f.issuer+server.RouteRegister, "application/json", strings.NewReader(`{"redirect_uris":`))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var errBody map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
		require.Equal(t, "invalid_client_metadata", errBody["error"])
	})
}

func TestAuthorizationCodeFlow(t *testing.T) {
	f := setupTestFixture(t, nil)
	ctx := context.Background()
	c := f.registerClient(t, clients.Metadata{PostLogoutRedirectURIs: []string{testPostLogoutURI}})

	provider, err := oidc.NewProvider(ctx, f.issuer)
	require.NoError(t, err)
	conf := oauth2.Config{
		ClientID:     c.ID,
		ClientSecret: c.Secret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  testRedirectURI,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}
	conf.Endpoint.AuthStyle = oauth2.AuthStyleInHeader

	verifier := oauth2.GenerateVerifier()
	authURL := conf.AuthCodeURL("state-123", oauth2.S256ChallengeOption(verifier), oidc.Nonce("nonce-456"))

	callback := f.signIn(t, authURL)
	require.Equal(t, "rp.example.com", callback.Host)
	require.Equal(t, "state-123", callback.Query().Get("state"))
	code := callback.Query().Get("code")
	require.NotEmpty(t, code)

	tok, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	require.NoError(t, err)
	require.Equal(t, "Bearer", tok.TokenType)
	rawIDToken, ok := tok.Extra("id_token").(string)
	require.True(t, ok)

	idToken, err := provider.Verifier(&oidc.Config{ClientID: c.ID}).Verify(ctx, rawIDToken)
	require.NoError(t, err)
	require.Equal(t, "nonce-456", idToken.Nonce)
	require.NoError(t, idToken.VerifyAccessToken(tok.AccessToken))

	t.Run("userinfo", func(t *testing.T) {
		info, err := provider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
		require.NoError(t, err)
		require.Equal(t, idToken.Subject, info.Subject)
		require.True(t, strings.HasPrefix(info.Email, testUsername+"@"))
	})

	t.Run("code cannot be redeemed twice", func(t *testing.T) {
		_, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
		require.Error(t, err)
		var retrieveErr *oauth2.RetrieveError
		require.ErrorAs(t, err, &retrieveErr)
		require.Equal(t, "invalid_grant", retrieveErr.ErrorCode)
	})

	t.Run("single sign-on skips the login page", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, conf.AuthCodeURL("state-sso", oauth2.SetAuthURLParam("prompt", "none")), nil)
		require.NoError(t, err)
		location := f.navigate(t, req)
		require.Equal(t, "rp.example.com", location.Host)
		require.NotEmpty(t, location.Query().Get("code"))
	})

	t.Run("end session redirects with state", func(t *testing.T) {
		q := url.Values{
			"id_token_hint":            {rawIDToken},
			"post_logout_redirect_uri": {testPostLogoutURI},
			"state":                    {"bye"},
		}
		req, err := http.NewRequest(http.MethodGet, f.issuer+server.RouteEndSession+"?"+q.Encode(), nil)
		require.NoError(t, err)
		resp, err := f.browser.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusFound, resp.StatusCode)
		location, err := resp.Location()
		require.NoError(t, err)
		require.Equal(t, testPostLogoutURI+"?state=bye", location.String())

		cleared := false
		for _, ck := range resp.Cookies() {
			if ck.Name == sessions.CookieName && ck.MaxAge < 0 {
				cleared = true
			}
		}
		require.True(t, cleared)
	})

	t.Run("prompt=none after logout needs a login", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, conf.AuthCodeURL("state-none", oauth2.SetAuthURLParam("prompt", "none")), nil)
		require.NoError(t, err)
		location := f.navigate(t, req)
		require.Equal(t, "login_required", location.Query().Get("error"))
		require.Equal(t, "state-none", location.Query().Get("state"))
	})
}

func TestLogin_BadCredentialsCanBeRetried(t *testing.T) {
	f := setupTestFixture(t, nil)
	c := f.registerClient(t, clients.Metadata{})

	q := url.Values{
		"client_id":     {c.ID},
		"response_type": {"code"},
		"redirect_uri":  {testRedirectURI},
		"scope":         {"openid"},
		"state":         {"s"},
	}
	req, err := http.NewRequest(http.MethodGet, f.issuer+server.RouteAuthorize+"?"+q.Encode(), nil)
	require.NoError(t, err)
	requestID := f.navigate(t, req).Query().Get("request_id")
	require.NotEmpty(t, requestID)

	resp, body := f.postForm(t, server.RouteLogin, url.Values{
		"request_id": {requestID}, "username": {testUsername}, "password": {"wrong"},
	}, "", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "access_denied", body["error"])

	form := url.Values{"request_id": {requestID}, "username": {testUsername}, "password": {testUserPassword}}
	req, err = http.NewRequest(http.MethodPost, f.issuer+server.RouteLogin, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	location := f.navigate(t, req)
	require.NotEmpty(t, location.Query().Get("code"))
	require.Equal(t, "s", location.Query().Get("state"))
}

func TestLoginPage(t *testing.T) {
	f := setupTestFixture(t, nil)
	c := f.registerClient(t, clients.Metadata{})

	q := url.Values{
		"client_id":     {c.ID},
		"response_type": {"code"},
		"redirect_uri":  {testRedirectURI},
		"scope":         {"openid"},
		"state":         {"s"},
	}
	req, err := http.NewRequest(http.MethodGet, f.issuer+server.RouteAuthorize+"?"+q.Encode(), nil)
	require.NoError(t, err)
	login := f.navigate(t, req)
	requestID := login.Query().Get("request_id")
	require.NotEmpty(t, requestID)

	t.Run("default login page url is served", func(t *testing.T) {
		resp, err := f.browser.Get(f.issuer + login.Path + "?" + login.RawQuery)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
		require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

		page, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Contains(t, string(page), `action="`+server.RouteLogin+`"`)
		require.Contains(t, string(page), `name="request_id" value="`+requestID+`"`)
		require.Contains(t, string(page), `name="password"`)
	})

	t.Run("request_id is escaped", func(t *testing.T) {
		resp, err := f.browser.Get(f.issuer + server.RouteLogin + "?request_id=" + url.QueryEscape(`"><script>x</script>`))
		require.NoError(t, err)
		defer resp.Body.Close()
		page, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NotContains(t, string(page), "<script>")
	})

	t.Run("missing request_id", func(t *testing.T) {
		resp, err := f.browser.Get(f.issuer + server.RouteLogin)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAuthorize_UnknownClientIsNotRedirected(t *testing.T) {
	f := setupTestFixture(t, nil)
	q := url.Values{"client_id": {"nobody"}, "response_type": {"code"}, "redirect_uri": {testRedirectURI}}
	resp, err := f.browser.Get(f.issuer + server.RouteAuthorize + "?" + q.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.GreaterOrEqual(t, resp.StatusCode, 400)
	require.Empty(t, resp.Header.Get("Location"))
	require.Equal(t, "SAMEORIGIN", resp.Header.Get("X-Frame-Options"))
}

func TestClientCredentialsIntrospectRevoke(t *testing.T) {
	f := setupTestFixture(t, nil)
	ctx := context.Background()
	c := f.registerClient(t, clients.Metadata{GrantTypes: []string{"client_credentials"}})

	cc := clientcredentials.Config{
		ClientID:     c.ID,
		ClientSecret: c.Secret,
		TokenURL:     f.issuer + server.RouteToken,
		Scopes:       []string{"profile"},
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tok, err := cc.Token(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, tok.AccessToken)
	require.Empty(t, tok.RefreshToken)

	t.Run("active token", func(t *testing.T) {
		resp, body := f.postForm(t, server.RouteIntrospection, url.Values{"token": {tok.AccessToken}}, c.ID, c.Secret)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, true, body["active"])
		require.Equal(t, c.ID, body["client_id"])
		require.Equal(t, "profile", body["scope"])
	})

	t.Run("unknown token is inactive", func(t *testing.T) {
		resp, body := f.postForm(t, server.RouteIntrospection, url.Values{"token": {"garbage"}}, c.ID, c.Secret)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, map[string]any{"active": false}, body)
	})

	t.Run("revoke", func(t *testing.T) {
		resp, _ := f.postForm(t, server.RouteRevoke, url.Values{"token": {tok.AccessToken}}, c.ID, c.Secret)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		_, body := f.postForm(t, server.RouteIntrospection, url.Values{"token": {tok.AccessToken}}, c.ID, c.Secret)
		require.Equal(t, false, body["active"])
	})
}

func TestTokenEndpoint_Errors(t *testing.T) {
	f := setupTestFixture(t, nil)
	c := f.registerClient(t, clients.Metadata{GrantTypes: []string{"client_credentials"}})

	t.Run("bad basic credentials", func(t *testing.T) {
		resp, body := f.postForm(t, server.RouteToken, url.Values{"grant_type": {"client_credentials"}}, c.ID, "wrong")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "invalid_client", body["error"])
		require.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
		require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	})

	t.Run("missing credentials", func(t *testing.T) {
		resp, body := f.postForm(t, server.RouteToken, url.Values{"grant_type": {"client_credentials"}}, "", "")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "invalid_client", body["error"])
	})

	t.Run("grant not registered", func(t *testing.T) {
		resp, body := f.postForm(t, server.RouteToken, url.Values{"grant_type": {"password"}, "username": {testUsername}, "password": {testUserPassword}}, c.ID, c.Secret)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "unauthorized_client", body["error"])
	})
}

func TestUserInfo_InvalidToken(t *testing.T) {
	f := setupTestFixture(t, nil)
	req, err := http.NewRequest(http.MethodGet, f.issuer+server.RouteUserInfo, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer nope")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), `error="invalid_token"`)
}

func TestRateLimiting(t *testing.T) {
	f := setupTestFixture(t, map[string]any{
		"enable_rate_limiting": true,
		"rate_limit_rps":       0.001,
		"rate_limit_burst":     2,
	})

	for i := 0; i < 2; i++ {
		resp, _ := f.postForm(t, server.RouteToken, url.Values{"grant_type": {"client_credentials"}}, "", "")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
	resp, body := f.postForm(t, server.RouteToken, url.Values{"grant_type": {"client_credentials"}}, "", "")
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "slow_down", body["error"])
	require.NotEmpty(t, resp.Header.Get("Retry-After"))

	// other endpoints are not limited
	resp, err := http.Get(f.issuer + server.RouteJWKS)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCorsPreflight(t *testing.T) {
	f := setupTestFixture(t, nil)

	preflight := func(origin string) *http.Response {
		req, err := http.NewRequest(http.MethodOptions, f.issuer+server.RouteToken, nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	resp := preflight(testAllowedOrigin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, testAllowedOrigin, resp.Header.Get("Access-Control-Allow-Origin"))

	resp = preflight("https://evil.example.com")
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestNotFoundAndMetrics(t *testing.T) {
	f := setupTestFixture(t, nil)

	resp, err := http.Get(f.issuer + "/nowhere")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(f.issuer + server.RouteMetrics)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	exposition, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(exposition), "http_requests_total")
}
