package security

import (
	"golang.org/x/crypto/bcrypt"
)

// BcryptCodeHasher hashes one-time codes before they reach the session store.
// Codes are short lived, so the default cost keeps verification latency low.
type BcryptCodeHasher struct {
	cost int
}

func NewBcryptCodeHasher() *BcryptCodeHasher {
	return &BcryptCodeHasher{cost: bcrypt.DefaultCost}
}

func (h *BcryptCodeHasher) Hash(code string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (h *BcryptCodeHasher) Compare(hash, code string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code))
}
