package keys

import (
	"context"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

var ErrInvalidSignature = errors.New("invalid signature")

// KeyRef identifies the key material for one sign or verify call.
//   - HS algorithms use Secret (the client secret).
//   - RS/ES algorithms use the server keystore (KeyID optional), unless the
//     reference carries client keys (JWKS or JWKSURI), which are used for verification.
type KeyRef struct {
	Secret  []byte
	KeyID   string
	JWKS    *jose.JSONWebKeySet
	JWKSURI string
}

func (r KeyRef) hasClientKeys() bool {
	return r.JWKS != nil || r.JWKSURI != ""
}

// Provider signs and verifies compact JWS values for every supported algorithm.
type Provider struct {
	keystore *Keystore
	remote   *RemoteKeySets
}

func NewProvider(keystore *Keystore, remote *RemoteKeySets) (*Provider, error) {
	if keystore == nil {
		return nil, errors.New("[NewProvider] keystore is required")
	}
	if remote == nil {
		remote = NewRemoteKeySets()
	}
	return &Provider{keystore: keystore, remote: remote}, nil
}

// Supports reports whether alg can be used with server-held keys.
func (p *Provider) Supports(alg Algorithm) bool {
	if alg.Family() == FamilyUnknown || !p.keystore.Enabled(alg) {
		return false
	}
	if alg.IsSymmetric() {
		return true
	}
	_, err := p.keystore.SigningKey(alg, "")
	return err == nil
}

// PublicJWKS is the document served at the jwks endpoint.
func (p *Provider) PublicJWKS() jose.JSONWebKeySet {
	return p.keystore.PublicJWKS()
}

func (p *Provider) signer(alg Algorithm, ref KeyRef) (Signer, error) {
	if !p.Supports(alg) {
		return nil, errors.Wrapf(ErrUnsupportedAlgorithm, "%q", alg)
	}
	if alg.IsSymmetric() {
		return NewHMACSigner(alg, ref.Secret)
	}
	kp, err := p.keystore.SigningKey(alg, ref.KeyID)
	if err != nil {
		return nil, err
	}
	return NewKeyPairSigner(kp), nil
}

// Sign produces a compact JWS over claims.
func (p *Provider) Sign(claims jwt.MapClaims, alg Algorithm, ref KeyRef) (string, error) {
	s, err := p.signer(alg, ref)
	if err != nil {
		return "", errors.Wrap(err, "[Provider.Sign]")
	}
	return s.Sign(claims)
}

// Verify checks the signature of raw with alg and ref and returns its claims.
// Registered claims are validated by golang-jwt unless opts disable it.
func (p *Provider) Verify(ctx context.Context, raw string, alg Algorithm, ref KeyRef, opts ...jwt.ParserOption) (jwt.MapClaims, error) {
	if alg.Family() == FamilyUnknown {
		return nil, errors.Wrapf(ErrUnsupportedAlgorithm, "[Provider.Verify] %q", alg)
	}
	parserOpts := append([]jwt.ParserOption{jwt.WithValidMethods([]string{string(alg)})}, opts...)

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return p.verificationKey(ctx, t, alg, ref)
	}, parserOpts...)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidSignature, err.Error())
	}
	if !token.Valid {
		return nil, ErrInvalidSignature
	}
	return claims, nil
}

func (p *Provider) verificationKey(ctx context.Context, t *jwt.Token, alg Algorithm, ref KeyRef) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if alg.IsSymmetric() {
		signer, err := NewHMACSigner(alg, ref.Secret)
		if err != nil {
			return nil, err
		}
		return signer.GetVerificationKey(t)
	}
	if !ref.hasClientKeys() {
		kp, err := p.keystore.VerificationKey(alg, kid)
		if err != nil {
			return nil, err
		}
		return NewKeyPairSigner(kp).GetVerificationKey(t)
	}
	if ref.JWKS != nil {
		return SelectKey(ref.JWKS, alg, kid)
	}
	set, err := p.remote.Get(ctx, ref.JWKSURI)
	if err != nil {
		return nil, err
	}
	key, err := SelectKey(set, alg, kid)
	if err == nil {
		return key, nil
	}
	// unknown kid: the client may have rotated keys since the last fetch
	if set, err = p.remote.Refresh(ctx, ref.JWKSURI); err != nil {
		return nil, err
	}
	return SelectKey(set, alg, kid)
}
