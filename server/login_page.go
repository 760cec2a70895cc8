package server

import (
	"html/template"
	"net/http"

	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/rs/zerolog/log"
)

// loginForm is the built-in sign-in page behind the default login_page_url.
// Deployments with their own UI point login_page_url elsewhere and post to
// RouteLogin the same way.
var loginForm = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Sign in</title>
</head>
<body>
<form method="post" action="{{.Action}}">
<input type="hidden" name="request_id" value="{{.RequestID}}">
<label>Username <input type="text" name="username" autocomplete="username" required></label>
<label>Password <input type="password" name="password" autocomplete="current-password" required></label>
<button type="submit">Sign in</button>
</form>
</body>
</html>
`))

// LoginPage renders the sign-in form for a parked authorization request.
func (s *Server) LoginPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.URL.Query().Get("request_id")
		if requestID == "" {
			writeJSONError(w, oautherrors.CodeInvalidRequest, "request_id is required", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		err := loginForm.Execute(w, struct {
			Action    string
			RequestID string
		}{RouteLogin, requestID})
		if err != nil {
			log.Warn().Err(err).Msg("failed to write login page")
		}
	}
}
