package keys

import (
	"sync"

	"github.com/go-jose/go-jose/v4"
	"github.com/pkg/errors"
)

var ErrKeyNotFound = errors.New("signing key not found")

// Keystore holds the server's asymmetric signing keys. Each provisioned algorithm
// has a current key; older keys stay resolvable by kid for verification.
type Keystore struct {
	mu      sync.RWMutex
	enabled map[Algorithm]bool
	current map[Algorithm]*KeyPair
	byKID   map[string]*KeyPair
}

// NewKeystore enables algs and generates a key pair for every asymmetric one.
// HMAC algorithms need no key material here: they are keyed per client.
func NewKeystore(algs []Algorithm) (*Keystore, error) {
	ks := &Keystore{
		enabled: make(map[Algorithm]bool),
		current: make(map[Algorithm]*KeyPair),
		byKID:   make(map[string]*KeyPair),
	}
	for _, alg := range algs {
		if alg.Family() == FamilyUnknown {
			return nil, errors.Wrapf(ErrUnsupportedAlgorithm, "[NewKeystore] %q", alg)
		}
		ks.enabled[alg] = true
		if alg.IsSymmetric() {
			continue
		}
		kp, err := GenerateKeyPair(alg, "")
		if err != nil {
			return nil, errors.Wrapf(err, "[NewKeystore] %s", alg)
		}
		ks.add(kp)
	}
	return ks, nil
}

func (ks *Keystore) add(kp *KeyPair) {
	ks.current[kp.Algorithm] = kp
	ks.byKID[kp.KeyID] = kp
}

// Enabled reports whether alg was provisioned.
func (ks *Keystore) Enabled(alg Algorithm) bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.enabled[alg]
}

// SigningKey returns the key for alg, preferring kid when it names a key of that algorithm.
func (ks *Keystore) SigningKey(alg Algorithm, kid string) (*KeyPair, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if kid != "" {
		if kp, ok := ks.byKID[kid]; ok && kp.Algorithm == alg {
			return kp, nil
		}
	}
	kp, ok := ks.current[alg]
	if !ok {
		return nil, errors.Wrapf(ErrKeyNotFound, "no %s key", alg)
	}
	return kp, nil
}

// VerificationKey resolves a key by kid, falling back to the current key for alg.
func (ks *Keystore) VerificationKey(alg Algorithm, kid string) (*KeyPair, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if kid != "" {
		kp, ok := ks.byKID[kid]
		if !ok || kp.Algorithm != alg {
			return nil, errors.Wrapf(ErrKeyNotFound, "kid %q", kid)
		}
		return kp, nil
	}
	kp, ok := ks.current[alg]
	if !ok {
		return nil, errors.Wrapf(ErrKeyNotFound, "no %s key", alg)
	}
	return kp, nil
}

// PublicJWKS returns every public key, ordered by algorithm.
func (ks *Keystore) PublicJWKS() jose.JSONWebKeySet {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	set := jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(ks.byKID))}
	for _, alg := range AllAlgorithms() {
		for _, kp := range ks.byKID {
			if kp.Algorithm == alg {
				set.Keys = append(set.Keys, kp.ToJWK())
			}
		}
	}
	return set
}
