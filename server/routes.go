package server

import "net/http"

func (s *Server) initRoutes() {
	// Discovery
	s.RegisterRouteHandler("GET "+RouteWellKnownOpenIDConfig, ChainMiddleware(s.WellKnownOpenIDConfig(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteJWKS, ChainMiddleware(s.JWKS(), s.APIMiddleware()...))

	// Dynamic client registration
	s.RegisterRouteHandler("POST "+RouteRegister, ChainMiddleware(s.RegisterClient(), s.APIMiddleware(s.RateLimitMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteRegister, ChainMiddleware(s.ReadClient(), s.APIMiddleware()...))
	s.RegisterRouteHandler("PUT "+RouteRegister, ChainMiddleware(s.UpdateClient(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteRegisterRotateSecret, ChainMiddleware(s.RotateClientSecret(), s.APIMiddleware()...))

	// Authorization endpoint and the login hand-off
	s.RegisterRouteHandler("GET "+RouteAuthorize, ChainMiddleware(s.Authorize(), s.BrowserMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthorize, ChainMiddleware(s.Authorize(), s.BrowserMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteLogin, ChainMiddleware(s.LoginPage(), s.BrowserMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteLogin, ChainMiddleware(s.Login(), s.BrowserMiddleware()...))

	// Token endpoint and token-protected reads
	s.RegisterRouteHandler("POST "+RouteToken, ChainMiddleware(s.Token(), s.APIMiddleware(s.RateLimitMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteIntrospection, ChainMiddleware(s.Introspect(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteRevoke, ChainMiddleware(s.Revoke(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteUserInfo, ChainMiddleware(s.UserInfo(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteUserInfo, ChainMiddleware(s.UserInfo(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteClientInfo, ChainMiddleware(s.ClientInfo(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteClientInfo, ChainMiddleware(s.ClientInfo(), s.APIMiddleware()...))

	// RP-initiated logout
	s.RegisterRouteHandler("GET "+RouteEndSession, ChainMiddleware(s.EndSession(), s.BrowserMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteEndSession, ChainMiddleware(s.EndSession(), s.BrowserMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics.Handler())
	s.RegisterRouteHandler("/", ChainMiddleware(s.NotFound(), s.APIMiddleware()...))
}

// NotFound answers every unrouted path with a protocol style error body.
func (s *Server) NotFound() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, "not_found", "no endpoint at "+r.URL.Path, http.StatusNotFound)
	}
}
