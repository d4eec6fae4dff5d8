package application

import (
	"time"
)

type Config struct {
	AppName               string
	CodeLength            int
	CodeTTL               time.Duration
	MaxAttempts           int
	ResendCooldown        time.Duration
	SendWindow            time.Duration
	SendLimit             int
	SMSTimeout            time.Duration
	TokenTTL              time.Duration
	RefreshGrace          time.Duration
	RegistrationTicketTTL time.Duration
}

type SendCodeRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type SendCodeResponse struct {
	PhoneNumber string    `json:"phone_number"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type VerifyCodeRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
}

// VerifyCodeResponse carries either a session credential (returning user) or
// a registration ticket (brand-new phone number), never both.
type VerifyCodeResponse struct {
	IdentityExists        bool       `json:"identity_exists"`
	IdentityID            string     `json:"identity_id,omitempty"`
	Token                 string     `json:"token,omitempty"`
	ExpiresIn             int64      `json:"expires_in,omitempty"`
	RegistrationToken     string     `json:"registration_token,omitempty"`
	RegistrationExpiresAt *time.Time `json:"registration_expires_at,omitempty"`
}

type CompleteRegistrationRequest struct {
	RegistrationToken string            `json:"registration_token"`
	DisplayName       string            `json:"display_name"`
	Profile           map[string]string `json:"profile"`
}

type CompleteRegistrationResponse struct {
	IdentityID string `json:"identity_id"`
	Token      string `json:"token"`
	ExpiresIn  int64  `json:"expires_in"`
}

type UpdateProfileRequest struct {
	DisplayName string            `json:"display_name"`
	Profile     map[string]string `json:"profile"`
}

type RefreshResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

type IdentityView struct {
	IdentityID  string            `json:"identity_id"`
	PhoneNumber string            `json:"phone_number"`
	DisplayName string            `json:"display_name"`
	Profile     map[string]string `json:"profile,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
