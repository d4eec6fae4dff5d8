package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently to 404/NOT_FOUND.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidPhoneFormat rejects numbers that are not canonical E.164.
	ErrInvalidPhoneFormat = errors.New("invalid phone number format")
	// ErrRateLimited signals the sliding send window for a phone number is full.
	ErrRateLimited = errors.New("rate limited")
	// ErrResendCooldown signals a resend was requested before the cooldown elapsed.
	ErrResendCooldown = errors.New("resend requested too soon")
	// ErrSMSDispatchFailed covers any delivery failure, including timeouts.
	// The OTP session is rolled back so the caller never holds a session for a
	// code that was never sent.
	ErrSMSDispatchFailed = errors.New("sms dispatch failed")
	// ErrNoActiveSession is returned when verification arrives without a live session.
	ErrNoActiveSession = errors.New("no active otp session")
	// ErrCodeExpired is returned once expires_at has passed; the session is deleted.
	ErrCodeExpired = errors.New("otp code expired")
	// ErrInvalidCode is a mismatch with attempts still remaining.
	ErrInvalidCode = errors.New("invalid otp code")
	// ErrMaxAttemptsExceeded is returned when the final attempt fails; the session is deleted.
	ErrMaxAttemptsExceeded = errors.New("max otp attempts exceeded")
	// ErrDuplicateIdentity is the conflict observed by the loser of a
	// concurrent registration for one phone number. Fatal for the request.
	ErrDuplicateIdentity = errors.New("identity already exists for phone number")
	// ErrCredentialMintFailed indicates signer misconfiguration. Fatal for the request;
	// the end user only sees a generic failure.
	ErrCredentialMintFailed = errors.New("credential mint failed")

	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
	ErrTokenExpired = errors.New("token expired")
)

// RateLimitError carries the countdown clients display next to the sentinel.
type RateLimitError struct {
	RetryAfter time.Duration
	Cooldown   bool
}

func (e *RateLimitError) Error() string {
	if e.Cooldown {
		return fmt.Sprintf("resend requested too soon: retry in %s", e.RetryAfter)
	}
	return fmt.Sprintf("rate limited: retry in %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	if e.Cooldown {
		return ErrResendCooldown
	}
	return ErrRateLimited
}

// InvalidCodeError reports how many attempts the session has left.
type InvalidCodeError struct {
	AttemptsRemaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid otp code: %d attempts remaining", e.AttemptsRemaining)
}

func (e *InvalidCodeError) Unwrap() error { return ErrInvalidCode }
