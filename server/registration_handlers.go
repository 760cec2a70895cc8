package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/jrsteele09/go-oidc-server/clients"
	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
)

const maxRegistrationBody = 64 << 10

func decodeMetadata(r *http.Request) (*clients.Metadata, error) {
	var md clients.Metadata
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRegistrationBody))
	if err := dec.Decode(&md); err != nil && err != io.EOF {
		return nil, oautherrors.InvalidClientMetadata("request body is not valid client metadata: %s", err.Error())
	}
	return &md, nil
}

func writeClient(w http.ResponseWriter, status int, c *clients.Client) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, status, c)
}

// RegisterClient handles dynamic client registration (RFC 7591).
func (s *Server) RegisterClient() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		md, err := decodeMetadata(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		c, err := s.clients.Register(r.Context(), md)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeClient(w, http.StatusCreated, c)
	}
}

// ReadClient returns a registration to a caller holding its registration access token.
func (s *Server) ReadClient() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.clients.Read(r.Context(), r.URL.Query().Get("client_id"), bearerToken(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeClient(w, http.StatusOK, c)
	}
}

// UpdateClient replaces the metadata of a registration (RFC 7592).
func (s *Server) UpdateClient() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := r.URL.Query().Get("client_id")
		md, err := decodeMetadata(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		c, err := s.clients.Update(r.Context(), clientID, bearerToken(r), md)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeClient(w, http.StatusOK, c)
	}
}

func (s *Server) RotateClientSecret() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.clients.RotateSecret(r.Context(), r.URL.Query().Get("client_id"), bearerToken(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeClient(w, http.StatusOK, c)
	}
}
