package keys

import (
	"crypto"
	"crypto/elliptic"
	_ "crypto/sha256" // register SHA-256 for crypto.Hash.New
	_ "crypto/sha512" // register SHA-384/512 for crypto.Hash.New
	"encoding/base64"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Algorithm is a JWS signing algorithm. The set is closed: every value is one of the constants below.
type Algorithm string

const (
	HS256 Algorithm = "HS256"
	HS384 Algorithm = "HS384"
	HS512 Algorithm = "HS512"
	RS256 Algorithm = "RS256"
	RS384 Algorithm = "RS384"
	RS512 Algorithm = "RS512"
	ES256 Algorithm = "ES256"
	ES384 Algorithm = "ES384"
	ES512 Algorithm = "ES512"
)

// Family groups algorithms by key type.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyHMAC
	FamilyRSA
	FamilyECDSA
)

var ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")

// AllAlgorithms lists every supported algorithm in a stable order.
func AllAlgorithms() []Algorithm {
	return []Algorithm{HS256, HS384, HS512, RS256, RS384, RS512, ES256, ES384, ES512}
}

// ParseAlgorithm maps a JOSE "alg" value onto the closed Algorithm set.
func ParseAlgorithm(value string) (Algorithm, error) {
	alg := Algorithm(value)
	if alg.Family() == FamilyUnknown {
		return "", errors.Wrapf(ErrUnsupportedAlgorithm, "%q", value)
	}
	return alg, nil
}

// ParseAlgorithms parses a list, failing on the first unknown entry.
func ParseAlgorithms(values []string) ([]Algorithm, error) {
	algs := make([]Algorithm, 0, len(values))
	for _, v := range values {
		alg, err := ParseAlgorithm(v)
		if err != nil {
			return nil, err
		}
		algs = append(algs, alg)
	}
	return algs, nil
}

func (a Algorithm) String() string {
	return string(a)
}

func (a Algorithm) Family() Family {
	switch a {
	case HS256, HS384, HS512:
		return FamilyHMAC
	case RS256, RS384, RS512:
		return FamilyRSA
	case ES256, ES384, ES512:
		return FamilyECDSA
	default:
		return FamilyUnknown
	}
}

// IsSymmetric reports whether the algorithm is keyed by a shared secret.
func (a Algorithm) IsSymmetric() bool {
	return a.Family() == FamilyHMAC
}

func (a Algorithm) SigningMethod() jwt.SigningMethod {
	return jwt.GetSigningMethod(string(a))
}

// Hash returns the digest paired with the algorithm.
func (a Algorithm) Hash() crypto.Hash {
	switch a {
	case HS384, RS384, ES384:
		return crypto.SHA384
	case HS512, RS512, ES512:
		return crypto.SHA512
	default:
		return crypto.SHA256
	}
}

// Curve returns the elliptic curve for ES algorithms, nil otherwise.
func (a Algorithm) Curve() elliptic.Curve {
	switch a {
	case ES256:
		return elliptic.P256()
	case ES384:
		return elliptic.P384()
	case ES512:
		return elliptic.P521()
	default:
		return nil
	}
}

// LeftHalfHash computes the c_hash / at_hash value of an OIDC ID token:
// base64url of the left-most half of the hash of value.
func (a Algorithm) LeftHalfHash(value string) string {
	h := a.Hash().New()
	h.Write([]byte(value))
	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}

// HeaderAlgorithm reads the "alg" header of a compact JWS without verifying it.
func HeaderAlgorithm(raw string) (Algorithm, string, error) {
	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return "", "", errors.Wrap(err, "[keys.HeaderAlgorithm] malformed JWT")
	}
	alg, err := ParseAlgorithm(token.Method.Alg())
	if err != nil {
		return "", "", err
	}
	kid, _ := token.Header["kid"].(string)
	return alg, kid, nil
}
