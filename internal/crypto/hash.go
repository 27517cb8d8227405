package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinCost is the lowest bcrypt cost accepted for stored passwords.
const MinCost = 10

var (
	ErrHashFailed  = errors.New("password hashing failed")
	ErrInvalidHash = errors.New("invalid password hash")
	ErrCostTooLow  = errors.New("bcrypt cost below minimum")
)

// Hasher hashes and verifies passwords with bcrypt at a fixed cost.
type Hasher struct {
	cost  int
	dummy []byte
}

// NewHasher creates a Hasher. It also prepares a throwaway hash at the same
// cost so failed lookups can spend as long as a real comparison.
func NewHasher(cost int) (*Hasher, error) {
	if cost < MinCost {
		return nil, ErrCostTooLow
	}
	if cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: cost %d", ErrHashFailed, cost)
	}

	seed, err := GenerateToken(16)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHashFailed, err)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(seed), cost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHashFailed, err)
	}

	return &Hasher{cost: cost, dummy: dummy}, nil
}

// Hash returns a salted bcrypt hash of password. On failure no hash is returned.
func (h *Hasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashFailed, err)
	}
	return string(hash), nil
}

// Verify checks password against a stored bcrypt hash.
// Returns (false, nil) on mismatch and an error only for unusable hashes.
func (h *Hasher) Verify(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
}

// VerifyDummy burns one comparison against the throwaway hash. Always false.
func (h *Hasher) VerifyDummy(password string) bool {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
	return false
}
