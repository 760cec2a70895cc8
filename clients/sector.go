package clients

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/jrsteele09/go-oidc-server/internal/utils"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const maxSectorDocumentBytes = 1 << 20

// verifySectorIdentifier fetches the sector identifier document and checks that
// it lists every redirect URI. Any failure is reported as invalid_client_metadata.
func (r *Registry) verifySectorIdentifier(ctx context.Context, sectorURI string, redirectURIs []string) error {
	uris, err := r.fetchSectorDocument(ctx, sectorURI)
	if err != nil {
		log.Warn().Err(err).Str("sector_identifier_uri", sectorURI).Msg("sector identifier fetch failed")
		return oautherrors.InvalidClientMetadata("failed to fetch sector_identifier_uri")
	}
	for _, uri := range redirectURIs {
		if !utils.Contains(uris, uri) {
			return oautherrors.InvalidClientMetadata("redirect_uri %q is not listed in the sector_identifier_uri document", uri)
		}
	}
	return nil
}

func (r *Registry) fetchSectorDocument(ctx context.Context, sectorURI string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.sectorTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sectorURI, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[Registry.fetchSectorDocument] request")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[Registry.fetchSectorDocument] get")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("[Registry.fetchSectorDocument] unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSectorDocumentBytes))
	if err != nil {
		return nil, errors.Wrap(err, "[Registry.fetchSectorDocument] read")
	}
	var uris []string
	if err := json.Unmarshal(body, &uris); err != nil {
		return nil, errors.Wrap(err, "[Registry.fetchSectorDocument] document is not a JSON array of strings")
	}
	return uris, nil
}
