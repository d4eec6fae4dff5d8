package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bazarly/auth-service/internal/domain"
	"github.com/bazarly/auth-service/internal/obs"
	"github.com/bazarly/auth-service/internal/ports"
)

// ResolveIdentity maps a canonical phone number onto the directory.
// It returns the existing id verbatim when a record is found and never
// invents one; creation is the explicit registration step's job.
func (s *Service) ResolveIdentity(ctx context.Context, phoneNumber string) (domain.Resolution, error) {
	phone, err := domain.CanonicalPhoneNumber(phoneNumber)
	if err != nil {
		return domain.Resolution{}, err
	}
	return s.resolveVerifiedPhone(ctx, phone)
}

func (s *Service) resolveVerifiedPhone(ctx context.Context, phone string) (domain.Resolution, error) {
	identity, err := s.directory.GetByPhoneNumber(ctx, phone)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			obs.RecordReconciliation("new")
			return domain.Resolution{Exists: false}, nil
		}
		return domain.Resolution{}, fmt.Errorf("directory lookup: %w", err)
	}

	resolution := domain.Resolution{Exists: true, IdentityID: identity.IdentityID}

	if identity.Deactivated {
		now := s.nowFn()
		payload, _ := json.Marshal(map[string]any{
			"identity_id":    identity.IdentityID,
			"reactivated_at": now,
		})
		event := ports.OutboxEvent{
			EventID:      uuid.New(),
			EventType:    "identity.reactivated",
			PartitionKey: identity.IdentityID,
			Payload:      payload,
			OccurredAt:   now,
		}
		if err := s.directory.ReactivateWithOutboxTx(ctx, identity.IdentityID, now, event); err != nil {
			return domain.Resolution{}, fmt.Errorf("reactivate identity: %w", err)
		}
		resolution.Reactivated = true
		obs.RecordReconciliation("reactivated")
		appLogger().InfoContext(ctx, "deactivated identity reactivated on login",
			"operation", "resolve_identity",
			"outcome", "success",
			"identity_id", identity.IdentityID,
		)
		return resolution, nil
	}

	obs.RecordReconciliation("existing")
	return resolution, nil
}

// CompleteRegistration consumes a registration ticket and creates the
// identity through the directory. The unique phone constraint downstream
// guarantees that of two concurrent registrations for one number, the loser
// observes a conflict rather than creating a second record.
func (s *Service) CompleteRegistration(ctx context.Context, req CompleteRegistrationRequest) (CompleteRegistrationResponse, error) {
	token := strings.TrimSpace(req.RegistrationToken)
	if token == "" {
		return CompleteRegistrationResponse{}, fmt.Errorf("%w: registration token is required", domain.ErrInvalidInput)
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		return CompleteRegistrationResponse{}, fmt.Errorf("%w: display name is required", domain.ErrInvalidInput)
	}

	ticket, err := s.tickets.Get(ctx, token)
	if err != nil {
		return CompleteRegistrationResponse{}, fmt.Errorf("load registration ticket: %w", err)
	}
	if ticket == nil {
		return CompleteRegistrationResponse{}, domain.ErrUnauthorized
	}
	now := s.nowFn()
	if now.After(ticket.ExpiresAt) {
		_ = s.tickets.Delete(ctx, token)
		return CompleteRegistrationResponse{}, domain.ErrTokenExpired
	}

	payload, _ := json.Marshal(map[string]any{
		"phone_number":  ticket.PhoneNumber,
		"registered_at": now,
	})
	event := ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    "identity.registered",
		PartitionKey: ticket.PhoneNumber,
		Payload:      payload,
		OccurredAt:   now,
	}

	identity, err := s.directory.CreateWithOutboxTx(ctx, ports.CreateIdentityParams{
		PhoneNumber:  ticket.PhoneNumber,
		DisplayName:  displayName,
		Profile:      req.Profile,
		CreatedAtUTC: now,
	}, event)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateIdentity) {
			// The ticket is spent either way; the caller must restart the
			// login flow, which will now resolve the winner's record.
			_ = s.tickets.Delete(ctx, token)
			appLogger().WarnContext(ctx, "registration lost creation race",
				"operation", "complete_registration",
				"outcome", "failure",
			)
			return CompleteRegistrationResponse{}, domain.ErrDuplicateIdentity
		}
		return CompleteRegistrationResponse{}, fmt.Errorf("create identity: %w", err)
	}
	_ = s.tickets.Delete(ctx, token)

	minted, err := s.mint(identity.IdentityID, identity.PhoneNumber)
	if err != nil {
		return CompleteRegistrationResponse{}, err
	}

	appLogger().InfoContext(ctx, "identity registered",
		"operation", "complete_registration",
		"outcome", "success",
		"identity_id", identity.IdentityID,
	)
	return CompleteRegistrationResponse{
		IdentityID: identity.IdentityID,
		Token:      minted,
		ExpiresIn:  int64(s.cfg.TokenTTL.Seconds()),
	}, nil
}

// Me returns the directory view of an already-authenticated identity.
func (s *Service) Me(ctx context.Context, identityID string) (IdentityView, error) {
	identity, err := s.activeIdentity(ctx, identityID)
	if err != nil {
		return IdentityView{}, err
	}
	return toIdentityView(identity), nil
}

// UpdateProfile rewrites the mutable part of the directory record.
// Phone number and identity id are immutable once persisted.
func (s *Service) UpdateProfile(ctx context.Context, identityID string, req UpdateProfileRequest) (IdentityView, error) {
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		return IdentityView{}, fmt.Errorf("%w: display name is required", domain.ErrInvalidInput)
	}

	identity, err := s.activeIdentity(ctx, identityID)
	if err != nil {
		return IdentityView{}, err
	}

	now := s.nowFn()
	if err := s.directory.UpdateIdentity(ctx, identity.IdentityID, displayName, req.Profile, now); err != nil {
		return IdentityView{}, fmt.Errorf("update identity: %w", err)
	}

	identity.DisplayName = displayName
	identity.Profile = req.Profile
	appLogger().InfoContext(ctx, "identity profile updated",
		"operation", "update_profile",
		"outcome", "success",
		"identity_id", identity.IdentityID,
	)
	return toIdentityView(identity), nil
}

// Deactivate marks the identity dormant. The record and its phone mapping
// survive; the next successful OTP login reactivates it.
func (s *Service) Deactivate(ctx context.Context, identityID string) error {
	identity, err := s.activeIdentity(ctx, identityID)
	if err != nil {
		return err
	}
	if err := s.directory.SetDeactivated(ctx, identity.IdentityID, true, s.nowFn()); err != nil {
		return fmt.Errorf("deactivate identity: %w", err)
	}
	appLogger().InfoContext(ctx, "identity deactivated",
		"operation", "deactivate_identity",
		"outcome", "success",
		"identity_id", identity.IdentityID,
	)
	return nil
}

func (s *Service) activeIdentity(ctx context.Context, identityID string) (domain.Identity, error) {
	identity, err := s.directory.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Identity{}, domain.ErrUnauthorized
		}
		return domain.Identity{}, err
	}
	if identity.Deactivated {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	return identity, nil
}

func toIdentityView(identity domain.Identity) IdentityView {
	return IdentityView{
		IdentityID:  identity.IdentityID,
		PhoneNumber: identity.PhoneNumber,
		DisplayName: identity.DisplayName,
		Profile:     identity.Profile,
		CreatedAt:   identity.CreatedAt,
	}
}
