package security

import "golang.org/x/crypto/bcrypt"

// defaultHashCost is the bcrypt work factor applied when the configured cost
// is absent or below bcrypt's minimum.
const defaultHashCost = bcrypt.DefaultCost

// PasswordHasher hashes and verifies login passwords with bcrypt.
type PasswordHasher struct {
	cost int
}

func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost {
		cost = defaultHashCost
	}
	return &PasswordHasher{cost: cost}
}

func (h *PasswordHasher) Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (h *PasswordHasher) Verify(plain, hashed string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
