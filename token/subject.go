package token

import (
	"crypto/sha256"
	"encoding/base64"
)

// PairwiseSubject derives the sub value a pairwise client sees for localSubject.
// Clients sharing a sector host see the same value; other sectors cannot correlate it.
func PairwiseSubject(sectorHost, localSubject, salt string) string {
	sum := sha256.Sum256([]byte(sectorHost + localSubject + salt))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
