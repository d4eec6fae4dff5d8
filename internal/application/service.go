package application

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/bazarly/auth-service/internal/ports"
)

type Service struct {
	cfg       Config
	directory ports.IdentityRepository
	sessions  ports.OTPSessionStore
	rates     ports.RateLimitStore
	tickets   ports.RegistrationTicketStore
	sms       ports.SMSSender
	hasher    ports.CodeHasher
	signer    ports.TokenSigner
	nowFn     func() time.Time
}

type Dependencies struct {
	Config    Config
	Directory ports.IdentityRepository
	Sessions  ports.OTPSessionStore
	RateLimit ports.RateLimitStore
	Tickets   ports.RegistrationTicketStore
	SMS       ports.SMSSender
	Hasher    ports.CodeHasher
	Signer    ports.TokenSigner
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.SendWindow <= 0 {
		cfg.SendWindow = time.Hour
	}
	if cfg.SendLimit <= 0 {
		cfg.SendLimit = 5
	}
	if cfg.RegistrationTicketTTL <= 0 {
		cfg.RegistrationTicketTTL = 10 * time.Minute
	}
	return &Service{
		cfg:       cfg,
		directory: deps.Directory,
		sessions:  deps.Sessions,
		rates:     deps.RateLimit,
		tickets:   deps.Tickets,
		sms:       deps.SMS,
		hasher:    deps.Hasher,
		signer:    deps.Signer,
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
}

func appLogger() *slog.Logger {
	return slog.Default().With(
		"module", "application",
		"layer", "service",
	)
}

// randomNumericCode draws a uniformly distributed fixed-length numeric code
// from crypto/rand. Modulo bias is avoided by sampling below the exact bound.
func randomNumericCode(length int) (string, error) {
	bound := big.NewInt(1)
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		bound.Mul(bound, ten)
	}
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", fmt.Errorf("draw otp code: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

// randomHex draws an opaque token for registration tickets. A short read from
// crypto/rand must fail loudly rather than hand out a low-entropy token.
func randomHex(bytesLen int) (string, error) {
	raw := make([]byte, bytesLen)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("draw ticket token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
