package keys_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-oidc-server/token/keys"
	"github.com/stretchr/testify/require"
)

const testSecret = "client-secret-with-enough-entropy-0123456789"

func newProvider(t *testing.T) *keys.Provider {
	t.Helper()
	ks, err := keys.NewKeystore(keys.AllAlgorithms())
	require.NoError(t, err)
	p, err := keys.NewProvider(ks, nil)
	require.NoError(t, err)
	return p
}

func testClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": "https://op.example.com",
		"sub": "user-1",
		"aud": "client-1",
		"iat": now.Unix(),
		"exp": now.Add(time.Minute).Unix(),
	}
}

func TestProvider_SignVerifyEveryAlgorithm(t *testing.T) {
	p := newProvider(t)
	ref := keys.KeyRef{Secret: []byte(testSecret)}

	for _, alg := range keys.AllAlgorithms() {
		t.Run(string(alg), func(t *testing.T) {
			require.True(t, p.Supports(alg))

			raw, err := p.Sign(testClaims(), alg, ref)
			require.NoError(t, err)

			headerAlg, _, err := keys.HeaderAlgorithm(raw)
			require.NoError(t, err)
			require.Equal(t, alg, headerAlg)

			claims, err := p.Verify(context.Background(), raw, alg, ref)
			require.NoError(t, err)
			require.Equal(t, "user-1", claims["sub"])
		})
	}
}

func TestProvider_VerifyRejectsAlgorithmMismatch(t *testing.T) {
	p := newProvider(t)
	ref := keys.KeyRef{Secret: []byte(testSecret)}

	raw, err := p.Sign(testClaims(), keys.HS256, ref)
	require.NoError(t, err)

	_, err = p.Verify(context.Background(), raw, keys.HS512, ref)
	require.ErrorIs(t, err, keys.ErrInvalidSignature)
}

func TestProvider_VerifyRejectsWrongSecret(t *testing.T) {
	p := newProvider(t)

	raw, err := p.Sign(testClaims(), keys.HS384, keys.KeyRef{Secret: []byte(testSecret)})
	require.NoError(t, err)

	_, err = p.Verify(context.Background(), raw, keys.HS384, keys.KeyRef{Secret: []byte("other")})
	require.ErrorIs(t, err, keys.ErrInvalidSignature)
}

func TestProvider_HMACWithoutSecretFails(t *testing.T) {
	p := newProvider(t)
	_, err := p.Sign(testClaims(), keys.HS256, keys.KeyRef{})
	require.Error(t, err)
}

func TestProvider_UnprovisionedAlgorithm(t *testing.T) {
	ks, err := keys.NewKeystore([]keys.Algorithm{keys.RS256})
	require.NoError(t, err)
	p, err := keys.NewProvider(ks, nil)
	require.NoError(t, err)

	require.False(t, p.Supports(keys.ES256))
	_, err = p.Sign(testClaims(), keys.ES256, keys.KeyRef{})
	require.ErrorIs(t, err, keys.ErrUnsupportedAlgorithm)
}

func TestNewKeystore_RejectsUnknownAlgorithm(t *testing.T) {
	_, err := keys.NewKeystore([]keys.Algorithm{"none"})
	require.ErrorIs(t, err, keys.ErrUnsupportedAlgorithm)
}

func TestKeystore_PublicJWKS(t *testing.T) {
	p := newProvider(t)
	set := p.PublicJWKS()
	require.Len(t, set.Keys, 6)
	for _, k := range set.Keys {
		require.True(t, k.IsPublic())
		require.Equal(t, "sig", k.Use)
		require.NotEmpty(t, k.KeyID)
	}

	// survives a JSON round trip through the jwks endpoint format
	raw, err := json.Marshal(set)
	require.NoError(t, err)
	parsed, err := keys.ParseJWKS(raw)
	require.NoError(t, err)
	require.Len(t, parsed.Keys, 6)
}

func clientKeySet(t *testing.T, kp *keys.KeyPair) *jose.JSONWebKeySet {
	t.Helper()
	return &jose.JSONWebKeySet{Keys: []jose.JSONWebKey{kp.ToJWK()}}
}

func TestProvider_VerifyWithInlineClientKeys(t *testing.T) {
	p := newProvider(t)

	for _, alg := range []keys.Algorithm{keys.RS256, keys.RS384, keys.RS512, keys.ES256, keys.ES384, keys.ES512} {
		t.Run(string(alg), func(t *testing.T) {
			kp, err := keys.GenerateKeyPair(alg, "client-key")
			require.NoError(t, err)
			raw, err := keys.NewKeyPairSigner(kp).Sign(testClaims())
			require.NoError(t, err)

			claims, err := p.Verify(context.Background(), raw, alg, keys.KeyRef{JWKS: clientKeySet(t, kp)})
			require.NoError(t, err)
			require.Equal(t, "client-1", claims["aud"])

			// a server key of the same alg must not verify a client signature
			_, err = p.Verify(context.Background(), raw, alg, keys.KeyRef{})
			require.Error(t, err)
		})
	}
}

func TestProvider_VerifyWithRemoteClientKeys(t *testing.T) {
	kp, err := keys.GenerateKeyPair(keys.ES256, "")
	require.NoError(t, err)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{kp.ToJWK()}})
	}))
	defer srv.Close()

	ks, err := keys.NewKeystore([]keys.Algorithm{keys.ES256})
	require.NoError(t, err)
	p, err := keys.NewProvider(ks, keys.NewRemoteKeySets(keys.WithHTTPClient(srv.Client())))
	require.NoError(t, err)

	raw, err := keys.NewKeyPairSigner(kp).Sign(testClaims())
	require.NoError(t, err)

	ref := keys.KeyRef{JWKSURI: srv.URL}
	_, err = p.Verify(context.Background(), raw, keys.ES256, ref)
	require.NoError(t, err)
	_, err = p.Verify(context.Background(), raw, keys.ES256, ref)
	require.NoError(t, err)
	require.Equal(t, int32(1), hits.Load(), "second verification is served from cache")
}

func TestRemoteKeySets_Non200(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := keys.NewRemoteKeySets(keys.WithHTTPClient(srv.Client())).Get(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestParseAlgorithm(t *testing.T) {
	alg, err := keys.ParseAlgorithm("ES384")
	require.NoError(t, err)
	require.Equal(t, keys.FamilyECDSA, alg.Family())

	_, err = keys.ParseAlgorithm("none")
	require.ErrorIs(t, err, keys.ErrUnsupportedAlgorithm)
}

func TestLeftHalfHash(t *testing.T) {
	// at_hash example from OpenID Connect Core, appendix A.3
	require.Equal(t, "77QmUPtjPfzWtF2AnpK9RQ", keys.RS256.LeftHalfHash("jHkWEdUXMU1BwAsC4vtUsZwnNvTIxEl0z9K3vx5KF0Y"))
	require.Len(t, keys.ES512.LeftHalfHash("code"), 43)
}

func TestLoadKeyPairFromPEM(t *testing.T) {
	kp, err := keys.GenerateKeyPair(keys.ES384, "k1")
	require.NoError(t, err)
	pemData, err := kp.ExportPrivateKeyPEM()
	require.NoError(t, err)

	loaded, err := keys.LoadKeyPairFromPEM(keys.ES384, "k1", pemData)
	require.NoError(t, err)
	require.Equal(t, "k1", loaded.KeyID)

	_, err = keys.LoadKeyPairFromPEM(keys.RS256, "k1", pemData)
	require.Error(t, err, "an EC key cannot serve RS256")
}

func TestSigner_VerificationKey(t *testing.T) {
	kp, err := keys.GenerateKeyPair(keys.RS384, "server-key")
	require.NoError(t, err)
	hmacSigner, err := keys.NewHMACSigner(keys.HS512, []byte(testSecret))
	require.NoError(t, err)

	signers := map[string]keys.Signer{
		"key pair": keys.NewKeyPairSigner(kp),
		"hmac":     hmacSigner,
	}
	for name, signer := range signers {
		t.Run(name, func(t *testing.T) {
			raw, err := signer.Sign(testClaims())
			require.NoError(t, err)

			parsed, err := jwt.Parse(raw, signer.GetVerificationKey)
			require.NoError(t, err)
			require.True(t, parsed.Valid)
		})
	}

	t.Run("rejects another algorithm", func(t *testing.T) {
		other, err := keys.NewHMACSigner(keys.HS256, []byte(testSecret))
		require.NoError(t, err)
		raw, err := other.Sign(testClaims())
		require.NoError(t, err)

		_, err = jwt.Parse(raw, hmacSigner.GetVerificationKey)
		require.Error(t, err)
		_, err = jwt.Parse(raw, keys.NewKeyPairSigner(kp).GetVerificationKey)
		require.Error(t, err)
	})

	t.Run("hmac needs a secret", func(t *testing.T) {
		_, err := keys.NewHMACSigner(keys.HS256, nil)
		require.Error(t, err)
		_, err = keys.NewHMACSigner(keys.RS256, []byte(testSecret))
		require.ErrorIs(t, err, keys.ErrUnsupportedAlgorithm)
	})
}
