package domain

import "time"

// Identity is the durable user record owned by the directory.
// The phone_number -> identity_id mapping is unique and immutable once
// persisted; every flow in this service exists to protect that invariant.
type Identity struct {
	IdentityID    string
	PhoneNumber   string
	DisplayName   string
	Profile       map[string]string
	Deactivated   bool
	DeactivatedAt *time.Time
	ReactivatedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Resolution is the outcome of mapping a verified phone number onto the
// directory. When the record exists the id is returned verbatim; this service
// never synthesizes an id for a phone number that already has one.
type Resolution struct {
	Exists      bool
	IdentityID  string
	Reactivated bool
}
