package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bazarly/auth-service/internal/domain"
)

// CreateIdentityParams captures atomic identity-creation inputs.
// Creation happens only through the explicit registration step, never as a
// side effect of login, so the params carry the already-verified phone number.
type CreateIdentityParams struct {
	PhoneNumber  string
	DisplayName  string
	Profile      map[string]string
	CreatedAtUTC time.Time
}

// IdentityRepository defines persistence operations for the user directory.
// The transactional create method exists to enforce identity+outbox
// consistency and to surface the unique-phone constraint as a typed conflict.
type IdentityRepository interface {
	CreateWithOutboxTx(ctx context.Context, params CreateIdentityParams, outboxEvent OutboxEvent) (domain.Identity, error)
	GetByPhoneNumber(ctx context.Context, phoneNumber string) (domain.Identity, error)
	GetByID(ctx context.Context, identityID string) (domain.Identity, error)
	UpdateIdentity(ctx context.Context, identityID, displayName string, profile map[string]string, updatedAt time.Time) error
	SetDeactivated(ctx context.Context, identityID string, deactivated bool, at time.Time) error
	// ReactivateWithOutboxTx clears the deactivated flag and records
	// reactivated_at in the same transaction as the outbox event so a
	// reactivation is never silent.
	ReactivateWithOutboxTx(ctx context.Context, identityID string, at time.Time, outboxEvent OutboxEvent) error
}

// OutboxEvent is the write-side event payload prior to storage.
// It is adapter-neutral to keep application code independent of broker specifics.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord represents durable outbox state, including retry/error metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	FirstSeenAt    time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// OutboxRepository controls the publish-retry workflow for identity lifecycle events.
// This explicit contract enables transactional outbox patterns without leaking DB details.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}
