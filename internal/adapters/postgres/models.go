package postgres

import (
	"time"

	"github.com/google/uuid"
)

type identityModel struct {
	IdentityID    string     `gorm:"column:identity_id;primaryKey"`
	PhoneNumber   string     `gorm:"column:phone_number"`
	DisplayName   string     `gorm:"column:display_name"`
	Profile       string     `gorm:"column:profile;type:jsonb"`
	Deactivated   bool       `gorm:"column:deactivated"`
	DeactivatedAt *time.Time `gorm:"column:deactivated_at"`
	ReactivatedAt *time.Time `gorm:"column:reactivated_at"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at"`
}

func (identityModel) TableName() string { return "identities" }

type identityOutboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	FirstSeenAt    time.Time  `gorm:"column:first_seen_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (identityOutboxModel) TableName() string { return "identity_outbox" }
