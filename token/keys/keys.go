package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"

	"github.com/go-jose/go-jose/v4"
	"github.com/pkg/errors"
)

// defaultRSABits is used for every RS algorithm; the hash, not the modulus, differs between them.
const defaultRSABits = 2048

// KeyPair represents a public/private key pair for signing tokens
type KeyPair struct {
	KeyID      string
	PrivateKey crypto.Signer
	PublicKey  crypto.PublicKey
	Algorithm  Algorithm
}

// GenerateKeyPair creates a key pair for an asymmetric algorithm. An empty keyID
// is replaced by the RFC 7638 thumbprint of the public key.
func GenerateKeyPair(alg Algorithm, keyID string) (*KeyPair, error) {
	var (
		private crypto.Signer
		err     error
	)
	switch alg.Family() {
	case FamilyRSA:
		private, err = rsa.GenerateKey(rand.Reader, defaultRSABits)
	case FamilyECDSA:
		private, err = ecdsa.GenerateKey(alg.Curve(), rand.Reader)
	default:
		return nil, errors.Wrapf(ErrUnsupportedAlgorithm, "[keys.GenerateKeyPair] %s has no key pair", alg)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[keys.GenerateKeyPair] generating %s key", alg)
	}
	return NewKeyPair(alg, keyID, private)
}

// NewKeyPair wraps existing key material, checking it suits alg.
func NewKeyPair(alg Algorithm, keyID string, private crypto.Signer) (*KeyPair, error) {
	if err := validateKeyForAlgorithm(alg, private); err != nil {
		return nil, err
	}
	kp := &KeyPair{
		KeyID:      keyID,
		PrivateKey: private,
		PublicKey:  private.Public(),
		Algorithm:  alg,
	}
	if kp.KeyID == "" {
		kid, err := Thumbprint(kp.PublicKey)
		if err != nil {
			return nil, err
		}
		kp.KeyID = kid
	}
	return kp, nil
}

func validateKeyForAlgorithm(alg Algorithm, key crypto.Signer) error {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		if alg.Family() != FamilyRSA {
			return errors.Errorf("RSA key cannot sign %s", alg)
		}
	case *ecdsa.PrivateKey:
		if alg.Family() != FamilyECDSA || k.Curve != alg.Curve() {
			return errors.Errorf("EC key on %s cannot sign %s", k.Curve.Params().Name, alg)
		}
	default:
		return errors.Errorf("unsupported key type %T", key)
	}
	return nil
}

// Thumbprint derives a key ID from the public key using the RFC 7638 JWK thumbprint.
func Thumbprint(public crypto.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: public}
	sum, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", errors.Wrap(err, "failed to compute key thumbprint")
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}

// ToJWK converts the key pair's public key to JWK format
func (kp *KeyPair) ToJWK() jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       kp.PublicKey,
		KeyID:     kp.KeyID,
		Algorithm: string(kp.Algorithm),
		Use:       "sig",
	}
}

// ExportPrivateKeyPEM exports the private key as PKCS#8 PEM
func (kp *KeyPair) ExportPrivateKeyPEM() (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(kp.PrivateKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal private key")
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

// LoadKeyPairFromPEM loads an RSA (PKCS#1 or PKCS#8) or EC (SEC 1 or PKCS#8) private key.
func LoadKeyPairFromPEM(alg Algorithm, keyID, pemData string) (*KeyPair, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	if rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return NewKeyPair(alg, keyID, rsaKey)
	}
	if ecKey, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return NewKeyPair(alg, keyID, ecKey)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, errors.New("private key does not implement crypto.Signer")
	}
	return NewKeyPair(alg, keyID, signer)
}
