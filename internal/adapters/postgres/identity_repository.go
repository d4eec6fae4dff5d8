package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/bazarly/auth-service/internal/domain"
	"github.com/bazarly/auth-service/internal/ids"
	"github.com/bazarly/auth-service/internal/ports"
)

type identityRepository struct {
	db *gorm.DB
}

func (r *identityRepository) CreateWithOutboxTx(ctx context.Context, params ports.CreateIdentityParams, outboxEvent ports.OutboxEvent) (domain.Identity, error) {
	var result domain.Identity
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profileJSON, err := encodeProfile(params.Profile)
		if err != nil {
			return err
		}

		rec := identityModel{
			IdentityID:  ids.NewIdentityID(),
			PhoneNumber: params.PhoneNumber,
			DisplayName: params.DisplayName,
			Profile:     profileJSON,
			CreatedAt:   params.CreatedAtUTC,
			UpdatedAt:   params.CreatedAtUTC,
		}
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicateIdentity
			}
			return err
		}

		payload := outboxEvent.Payload
		if len(payload) == 0 {
			payload = []byte(`{}`)
		}
		var payloadObj map[string]any
		if err := json.Unmarshal(payload, &payloadObj); err == nil {
			payloadObj["identity_id"] = rec.IdentityID
			if adjusted, mErr := json.Marshal(payloadObj); mErr == nil {
				payload = adjusted
			}
		}

		outbox := identityOutboxModel{
			OutboxID:     outboxEvent.EventID,
			EventType:    outboxEvent.EventType,
			PartitionKey: rec.IdentityID,
			Payload:      string(payload),
			CreatedAt:    outboxEvent.OccurredAt,
			FirstSeenAt:  outboxEvent.OccurredAt,
		}
		if err := tx.Create(&outbox).Error; err != nil {
			return err
		}

		result, err = toDomainIdentity(rec)
		return err
	})
	if err != nil {
		return domain.Identity{}, err
	}
	return result, nil
}

func (r *identityRepository) GetByPhoneNumber(ctx context.Context, phoneNumber string) (domain.Identity, error) {
	var rec identityModel
	if err := r.db.WithContext(ctx).Where("phone_number = ?", phoneNumber).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Identity{}, domain.ErrNotFound
		}
		return domain.Identity{}, err
	}
	return toDomainIdentity(rec)
}

func (r *identityRepository) GetByID(ctx context.Context, identityID string) (domain.Identity, error) {
	var rec identityModel
	if err := r.db.WithContext(ctx).Where("identity_id = ?", identityID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Identity{}, domain.ErrNotFound
		}
		return domain.Identity{}, err
	}
	return toDomainIdentity(rec)
}

func (r *identityRepository) UpdateIdentity(ctx context.Context, identityID, displayName string, profile map[string]string, updatedAt time.Time) error {
	profileJSON, err := encodeProfile(profile)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).
		Model(&identityModel{}).
		Where("identity_id = ?", identityID).
		Updates(map[string]any{
			"display_name": displayName,
			"profile":      profileJSON,
			"updated_at":   updatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *identityRepository) SetDeactivated(ctx context.Context, identityID string, deactivated bool, at time.Time) error {
	updates := map[string]any{
		"deactivated": deactivated,
		"updated_at":  at,
	}
	if deactivated {
		updates["deactivated_at"] = at
	} else {
		updates["reactivated_at"] = at
	}
	res := r.db.WithContext(ctx).
		Model(&identityModel{}).
		Where("identity_id = ?", identityID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *identityRepository) ReactivateWithOutboxTx(ctx context.Context, identityID string, at time.Time, outboxEvent ports.OutboxEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&identityModel{}).
			Where("identity_id = ?", identityID).
			Where("deactivated = ?", true).
			Updates(map[string]any{
				"deactivated":    false,
				"reactivated_at": at,
				"updated_at":     at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}

		payload := outboxEvent.Payload
		if len(payload) == 0 {
			payload = []byte(`{}`)
		}
		outbox := identityOutboxModel{
			OutboxID:     outboxEvent.EventID,
			EventType:    outboxEvent.EventType,
			PartitionKey: identityID,
			Payload:      string(payload),
			CreatedAt:    outboxEvent.OccurredAt,
			FirstSeenAt:  outboxEvent.OccurredAt,
		}
		return tx.Create(&outbox).Error
	})
}

func encodeProfile(profile map[string]string) (string, error) {
	if len(profile) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func toDomainIdentity(rec identityModel) (domain.Identity, error) {
	profile := map[string]string{}
	if rec.Profile != "" {
		if err := json.Unmarshal([]byte(rec.Profile), &profile); err != nil {
			return domain.Identity{}, err
		}
	}
	return domain.Identity{
		IdentityID:    rec.IdentityID,
		PhoneNumber:   rec.PhoneNumber,
		DisplayName:   rec.DisplayName,
		Profile:       profile,
		Deactivated:   rec.Deactivated,
		DeactivatedAt: rec.DeactivatedAt,
		ReactivatedAt: rec.ReactivatedAt,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}, nil
}
