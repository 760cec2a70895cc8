package server

import (
	"errors"
	"net/http"

	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/jrsteele09/go-oidc-server/sessions"
	"github.com/rs/zerolog/log"
)

// EndSession is the RP-initiated logout endpoint.
func (s *Server) EndSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, oautherrors.CodeInvalidRequest, "failed to parse request", http.StatusBadRequest)
			return
		}

		result, err := s.sessions.EndSession(r.Context(), sessions.EndSessionRequest{
			IDTokenHint:           r.Form.Get("id_token_hint"),
			PostLogoutRedirectURI: r.Form.Get("post_logout_redirect_uri"),
			State:                 r.Form.Get("state"),
			Sid:                   r.Form.Get("sid"),
			SessionID:             s.sessionID(r),
		})
		if err != nil {
			var redirect *sessions.RedirectError
			if errors.As(err, &redirect) {
				log.Debug().Str("error", redirect.Err.Code).Msg("end_session failure redirected")
				http.Redirect(w, r, redirect.Location, http.StatusTemporaryRedirect)
				return
			}
			writeError(w, r, err)
			return
		}

		s.clearSessionCookie(w)
		if result.RedirectURI != "" {
			http.Redirect(w, r, result.RedirectURI, http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", contentTypeHTML)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(result.HTML); err != nil {
			log.Warn().Err(err).Msg("failed to write logout page")
		}
	}
}
