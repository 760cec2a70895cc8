package server

// Route path constants. Every endpoint URL published in discovery is built from these.
const (
	RouteWellKnownOpenIDConfig = "/.well-known/openid-configuration"
	RouteJWKS                  = "/jwks"

	RouteRegister             = "/register"
	RouteRegisterRotateSecret = "/register/rotate_secret"

	RouteAuthorize     = "/authorize"
	RouteLogin         = "/login"
	RouteToken         = "/token"
	RouteIntrospection = "/introspection"
	RouteRevoke        = "/revoke"
	RouteUserInfo      = "/userinfo"
	RouteClientInfo    = "/clientinfo"
	RouteEndSession    = "/end_session"

	RouteMetrics = "/metrics"
)
