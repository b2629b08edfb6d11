package session

import "golang.org/x/crypto/bcrypt"

// Hasher hashes and verifies local (non-HRIS) user passwords. HRIS-sourced
// users never have a PasswordHash — Login rejects before reaching here.
type Hasher struct {
	cost int
}

func NewHasher(cost int) Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return Hasher{cost: cost}
}

func (h Hasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h Hasher) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
