package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/bazarly/auth-service/internal/domain"
	"github.com/bazarly/auth-service/internal/obs"
	"github.com/bazarly/auth-service/internal/ports"
)

// mint produces a signed credential whose subject is exactly the resolved or
// directory-allocated identity id. Minting never allocates ids itself.
func (s *Service) mint(identityID, phoneNumber string) (string, error) {
	now := s.nowFn()
	token, err := s.signer.Sign(ports.AuthClaims{
		IdentityID:  identityID,
		PhoneNumber: phoneNumber,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.cfg.TokenTTL),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrCredentialMintFailed, err)
	}
	obs.RecordCredentialMinted()
	return token, nil
}

// ValidateToken is a stateless signature and expiry check.
func (s *Service) ValidateToken(_ context.Context, token string) (ports.AuthClaims, error) {
	claims, err := s.signer.ParseAndValidate(token)
	if err != nil {
		if errors.Is(err, domain.ErrTokenExpired) {
			return ports.AuthClaims{}, domain.ErrTokenExpired
		}
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	return claims, nil
}

// Refresh re-mints a credential. An expired token is still accepted while
// inside the configured grace window, provided the identity is still active.
func (s *Service) Refresh(ctx context.Context, token string) (RefreshResponse, error) {
	claims, err := s.signer.ParseAndValidate(token)
	if err != nil {
		if !errors.Is(err, domain.ErrTokenExpired) {
			return RefreshResponse{}, domain.ErrUnauthorized
		}
		claims, err = s.signer.ParseExpired(token)
		if err != nil {
			return RefreshResponse{}, domain.ErrUnauthorized
		}
		if s.nowFn().After(claims.ExpiresAt.Add(s.cfg.RefreshGrace)) {
			return RefreshResponse{}, domain.ErrTokenExpired
		}
	}

	identity, err := s.directory.GetByID(ctx, claims.IdentityID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return RefreshResponse{}, domain.ErrUnauthorized
		}
		return RefreshResponse{}, err
	}
	if identity.Deactivated {
		return RefreshResponse{}, domain.ErrUnauthorized
	}

	minted, err := s.mint(identity.IdentityID, identity.PhoneNumber)
	if err != nil {
		return RefreshResponse{}, err
	}
	return RefreshResponse{
		Token:     minted,
		ExpiresIn: int64(s.cfg.TokenTTL.Seconds()),
	}, nil
}

// PublicJWKs exposes verification keys for sibling services.
func (s *Service) PublicJWKs() ([]map[string]any, error) {
	return s.signer.PublicJWKs()
}
