package postgres

import (
	"errors"

	"gorm.io/gorm"

	"github.com/bazarly/auth-service/internal/ports"
)

type Repositories struct {
	Identities ports.IdentityRepository
	Outbox     ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Identities: &identityRepository{db: db},
		Outbox:     &outboxRepository{db: db},
	}
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
