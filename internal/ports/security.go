package ports

import "time"

// CodeHasher hides the hashing scheme for OTP codes at rest.
type CodeHasher interface {
	Hash(code string) (string, error)
	Compare(hash, code string) error
}

// AuthClaims is the adapter-neutral view of a session credential.
// The subject is always the directory-issued identity id; the phone number
// rides along for downstream authorization.
type AuthClaims struct {
	IdentityID  string    `json:"identity_id"`
	PhoneNumber string    `json:"phone_number"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	KeyID       string    `json:"kid"`
}

// TokenSigner mints and validates session credentials.
type TokenSigner interface {
	Sign(claims AuthClaims) (string, error)
	ParseAndValidate(token string) (AuthClaims, error)
	// ParseExpired accepts an otherwise-valid token whose expiry has passed,
	// for refresh within the grace window.
	ParseExpired(token string) (AuthClaims, error)
	PublicJWKs() ([]map[string]any, error)
}
