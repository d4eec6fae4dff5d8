package ports

import (
	"context"
	"time"
)

// OTPSession is the short-lived envelope proving a code is in flight for a
// phone number. Only the bcrypt hash of the code is stored; the plaintext
// exists nowhere but the SMS message body.
type OTPSession struct {
	PhoneNumber  string    `json:"phone_number"`
	CodeHash     string    `json:"code_hash"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	AttemptCount int       `json:"attempt_count"`
	MaxAttempts  int       `json:"max_attempts"`
	LastSentAt   time.Time `json:"last_sent_at"`
}

// OTPSessionStore holds at most one active session per phone number.
// IncrementAttempts and Delete must be atomic per key: two concurrent
// verifications must observe distinct attempt counts, and only one caller may
// consume a session on success.
type OTPSessionStore interface {
	Put(ctx context.Context, phoneNumber string, session OTPSession, ttl time.Duration) error
	Get(ctx context.Context, phoneNumber string) (*OTPSession, error)
	// IncrementAttempts adds one to the attempt counter and returns the new
	// value, or domain.ErrNoActiveSession if the session is gone.
	IncrementAttempts(ctx context.Context, phoneNumber string) (int, error)
	// Delete removes the session and reports whether it existed. The boolean
	// is what makes codes single-use under concurrent verification: exactly
	// one caller sees true.
	Delete(ctx context.Context, phoneNumber string) (bool, error)
}

// RateLimitDecision is the outcome of recording one send against the window.
type RateLimitDecision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RateLimitStore enforces the sliding send window per phone number.
// RecordSend must count and append atomically so the window limit cannot be
// exceeded by concurrent requests for the same number.
type RateLimitStore interface {
	RecordSend(ctx context.Context, phoneNumber string, now time.Time, window time.Duration, limit int) (RateLimitDecision, error)
	// ReleaseSend removes the send recorded at sentAt so that a rolled-back
	// dispatch does not consume a window slot: provider outages must not
	// lock a phone number out of codes it never received.
	ReleaseSend(ctx context.Context, phoneNumber string, sentAt time.Time) error
}

// RegistrationTicket carries a verified phone number from OTP success to the
// explicit registration step. Binding the phone here prevents a ticket minted
// for one number from registering another.
type RegistrationTicket struct {
	PhoneNumber string    `json:"phone_number"`
	VerifiedAt  time.Time `json:"verified_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// RegistrationTicketStore persists short-lived registration tickets.
type RegistrationTicketStore interface {
	Put(ctx context.Context, token string, ticket RegistrationTicket, ttl time.Duration) error
	Get(ctx context.Context, token string) (*RegistrationTicket, error)
	Delete(ctx context.Context, token string) error
}
