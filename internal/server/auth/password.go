package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/travelplanner/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// PasswordHasher hashes passwords with bcrypt at a fixed cost.
type PasswordHasher struct {
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

func NewPasswordHasher(cost int) *PasswordHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash returns a salted bcrypt hash of plaintext.
func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("%w: password cannot be empty", common.ErrValidation)
	}
	if len(plaintext) > MaxPasswordBytes {
		return "", fmt.Errorf("%w: password longer than %d bytes", common.ErrValidation, MaxPasswordBytes)
	}

	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: %v", common.ErrValidation, err)
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Verify reports whether plaintext matches hash. A malformed hash is a
// mismatch.
func (h *PasswordHasher) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// VerifyDummy burns the same time as Verify against a real hash and always
// returns false. Login calls it for unknown emails.
func (h *PasswordHasher) VerifyDummy(plaintext string) bool {
	h.dummyOnce.Do(func() {
		h.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(plaintext))
	return false
}
