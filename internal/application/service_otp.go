package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/bazarly/auth-service/internal/domain"
	"github.com/bazarly/auth-service/internal/obs"
	"github.com/bazarly/auth-service/internal/ports"
)

// SendCode starts (or restarts) an OTP session for a phone number.
// Whether this is a resend is inferred from the presence of an active
// session, never from a client-supplied flag: the cooldown applies exactly
// when a code is already in flight.
func (s *Service) SendCode(ctx context.Context, req SendCodeRequest) (SendCodeResponse, error) {
	phone, err := domain.CanonicalPhoneNumber(req.PhoneNumber)
	if err != nil {
		obs.RecordOTPSend("invalid_phone")
		return SendCodeResponse{}, err
	}

	now := s.nowFn()

	existing, err := s.sessions.Get(ctx, phone)
	if err != nil {
		return SendCodeResponse{}, fmt.Errorf("load otp session: %w", err)
	}
	if existing != nil && now.Before(existing.ExpiresAt) {
		elapsed := now.Sub(existing.LastSentAt)
		if elapsed < s.cfg.ResendCooldown {
			obs.RecordOTPSend("resend_too_soon")
			return SendCodeResponse{}, &domain.RateLimitError{
				Cooldown:   true,
				RetryAfter: s.cfg.ResendCooldown - elapsed,
			}
		}
	}

	decision, err := s.rates.RecordSend(ctx, phone, now, s.cfg.SendWindow, s.cfg.SendLimit)
	if err != nil {
		return SendCodeResponse{}, fmt.Errorf("record send against rate window: %w", err)
	}
	if !decision.Allowed {
		obs.RecordOTPSend("rate_limited")
		return SendCodeResponse{}, &domain.RateLimitError{RetryAfter: decision.RetryAfter}
	}

	code, err := randomNumericCode(s.cfg.CodeLength)
	if err != nil {
		return SendCodeResponse{}, err
	}
	codeHash, err := s.hasher.Hash(code)
	if err != nil {
		return SendCodeResponse{}, fmt.Errorf("hash otp code: %w", err)
	}

	expiresAt := now.Add(s.cfg.CodeTTL)
	session := ports.OTPSession{
		PhoneNumber:  phone,
		CodeHash:     codeHash,
		IssuedAt:     now,
		ExpiresAt:    expiresAt,
		AttemptCount: 0,
		MaxAttempts:  s.cfg.MaxAttempts,
		LastSentAt:   now,
	}
	if err := s.sessions.Put(ctx, phone, session, s.cfg.CodeTTL); err != nil {
		return SendCodeResponse{}, fmt.Errorf("store otp session: %w", err)
	}

	message := fmt.Sprintf("%s: your verification code is %s. It expires in %d minutes.",
		s.cfg.AppName, code, int(s.cfg.CodeTTL.Minutes()))

	dispatchCtx := ctx
	if s.cfg.SMSTimeout > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeout(ctx, s.cfg.SMSTimeout)
		defer cancel()
	}
	result, err := s.sms.Send(dispatchCtx, phone, message)
	if err != nil {
		// The user must never hold a session for a code that was never
		// delivered; a timeout counts the same as a provider failure. The
		// window slot is given back too, or a provider outage would burn
		// through the send limit with nothing delivered.
		_, _ = s.sessions.Delete(ctx, phone)
		if relErr := s.rates.ReleaseSend(ctx, phone, now); relErr != nil {
			appLogger().WarnContext(ctx, "rate window slot not released",
				"operation", "otp_send",
				"error", relErr.Error(),
			)
		}
		obs.RecordOTPSend("dispatch_failed")

		kind := ports.DispatchTransient
		var dispatchErr *ports.DispatchError
		if errors.As(err, &dispatchErr) {
			kind = dispatchErr.Kind
		}
		appLogger().WarnContext(ctx, "otp dispatch failed, session rolled back",
			"operation", "otp_send",
			"outcome", "failure",
			"dispatch_kind", string(kind),
			"error", err.Error(),
		)
		return SendCodeResponse{}, fmt.Errorf("%w: %v", domain.ErrSMSDispatchFailed, err)
	}

	obs.RecordOTPSend("success")
	appLogger().InfoContext(ctx, "otp code sent",
		"operation", "otp_send",
		"outcome", "success",
		"provider_message_id", result.ProviderMessageID,
		"expires_at", expiresAt,
	)
	return SendCodeResponse{PhoneNumber: phone, ExpiresAt: expiresAt}, nil
}

// VerifyCode checks a submitted code against the active session. A successful
// match is the only path that hands control to identity reconciliation.
func (s *Service) VerifyCode(ctx context.Context, req VerifyCodeRequest) (VerifyCodeResponse, error) {
	phone, err := domain.CanonicalPhoneNumber(req.PhoneNumber)
	if err != nil {
		return VerifyCodeResponse{}, err
	}

	session, err := s.sessions.Get(ctx, phone)
	if err != nil {
		return VerifyCodeResponse{}, fmt.Errorf("load otp session: %w", err)
	}
	if session == nil {
		obs.RecordOTPVerification("no_session")
		return VerifyCodeResponse{}, domain.ErrNoActiveSession
	}

	now := s.nowFn()
	if now.After(session.ExpiresAt) {
		_, _ = s.sessions.Delete(ctx, phone)
		obs.RecordOTPVerification("expired")
		return VerifyCodeResponse{}, domain.ErrCodeExpired
	}

	if s.hasher.Compare(session.CodeHash, req.Code) != nil {
		attempts, incErr := s.sessions.IncrementAttempts(ctx, phone)
		if incErr != nil {
			if errors.Is(incErr, domain.ErrNoActiveSession) {
				obs.RecordOTPVerification("no_session")
				return VerifyCodeResponse{}, domain.ErrNoActiveSession
			}
			return VerifyCodeResponse{}, fmt.Errorf("count otp attempt: %w", incErr)
		}
		if attempts >= session.MaxAttempts {
			_, _ = s.sessions.Delete(ctx, phone)
			obs.RecordOTPVerification("attempts_exhausted")
			return VerifyCodeResponse{}, domain.ErrMaxAttemptsExceeded
		}
		obs.RecordOTPVerification("mismatch")
		return VerifyCodeResponse{}, &domain.InvalidCodeError{
			AttemptsRemaining: session.MaxAttempts - attempts,
		}
	}

	// Codes are single use: exactly one concurrent caller observes the delete.
	consumed, err := s.sessions.Delete(ctx, phone)
	if err != nil {
		return VerifyCodeResponse{}, fmt.Errorf("consume otp session: %w", err)
	}
	if !consumed {
		obs.RecordOTPVerification("no_session")
		return VerifyCodeResponse{}, domain.ErrNoActiveSession
	}
	obs.RecordOTPVerification("success")

	resolution, err := s.resolveVerifiedPhone(ctx, phone)
	if err != nil {
		return VerifyCodeResponse{}, err
	}

	if resolution.Exists {
		token, err := s.mint(resolution.IdentityID, phone)
		if err != nil {
			return VerifyCodeResponse{}, err
		}
		return VerifyCodeResponse{
			IdentityExists: true,
			IdentityID:     resolution.IdentityID,
			Token:          token,
			ExpiresIn:      int64(s.cfg.TokenTTL.Seconds()),
		}, nil
	}

	ticketToken, err := randomHex(32)
	if err != nil {
		return VerifyCodeResponse{}, err
	}
	ticketExpiry := now.Add(s.cfg.RegistrationTicketTTL)
	ticket := ports.RegistrationTicket{
		PhoneNumber: phone,
		VerifiedAt:  now,
		ExpiresAt:   ticketExpiry,
	}
	if err := s.tickets.Put(ctx, ticketToken, ticket, s.cfg.RegistrationTicketTTL); err != nil {
		return VerifyCodeResponse{}, fmt.Errorf("store registration ticket: %w", err)
	}
	return VerifyCodeResponse{
		IdentityExists:        false,
		RegistrationToken:     ticketToken,
		RegistrationExpiresAt: &ticketExpiry,
	}, nil
}
