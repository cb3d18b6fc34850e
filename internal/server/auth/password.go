package auth

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher hashes passwords with bcrypt at a fixed cost.
type PasswordHasher struct {
	cost int

	dummyOnce sync.Once
	dummy     string
}

func NewPasswordHasher(cost int) *PasswordHasher {
	return &PasswordHasher{cost: cost}
}

func (h *PasswordHasher) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether plain matches hash. A malformed hash is a mismatch.
func (h *PasswordHasher) Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// DummyHash returns a hash of a random secret at the configured cost. Login
// compares against it when the account does not exist so both paths spend
// the same time in bcrypt.
func (h *PasswordHasher) DummyHash() string {
	h.dummyOnce.Do(func() {
		b, err := bcrypt.GenerateFromPassword([]byte("dealerdesk-no-such-user"), h.cost)
		if err != nil {
			b, _ = bcrypt.GenerateFromPassword([]byte("dealerdesk-no-such-user"), bcrypt.DefaultCost)
		}
		h.dummy = string(b)
	})
	return h.dummy
}
