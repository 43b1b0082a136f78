package auth

import (
	"crypto/sha256"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// HashAPIKey hashes a plaintext API key with configured cost.
func HashAPIKey(key string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CompareAPIKey verifies a key against its hashed value.
func CompareAPIKey(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}

// KeyVerifier checks presented API keys against a bcrypt hash. Keys that
// passed once are remembered by digest so bcrypt runs once per key.
type KeyVerifier struct {
	hashed   string
	verified sync.Map
}

// NewKeyVerifier hashes key with cost.
func NewKeyVerifier(key string, cost int) (*KeyVerifier, error) {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := HashAPIKey(key, cost)
	if err != nil {
		return nil, err
	}
	return &KeyVerifier{hashed: hashed}, nil
}

// Verify reports whether presented is the configured key.
func (v *KeyVerifier) Verify(presented string) bool {
	if presented == "" {
		return false
	}
	digest := sha256.Sum256([]byte(presented))
	if _, ok := v.verified.Load(digest); ok {
		return true
	}
	if CompareAPIKey(v.hashed, presented) != nil {
		return false
	}
	v.verified.Store(digest, struct{}{})
	return true
}
