package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for the service.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	// StoreBackend selects the OTP/rate-limit/ticket store: "redis" or "memory".
	// Memory is single-instance only; pending sessions are lost on restart.
	StoreBackend string

	DatabaseURL string
	RedisURL    string

	JWTPrivateKeyPEM  string
	JWTPublicKeyPEM   string
	JWTKeyID          string
	AllowEphemeralJWT bool

	CodeLength     int
	CodeTTL        time.Duration
	MaxAttempts    int
	ResendCooldown time.Duration
	SendWindow     time.Duration
	SendLimit      int

	SMSBackend  string
	SMSEndpoint string
	SMSAPIKey   string
	SMSFrom     string
	SMSTimeout  time.Duration

	TokenTTL              time.Duration
	RefreshGrace          time.Duration
	RegistrationTicketTTL time.Duration

	MaxDBConns         int32
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int
	JanitorInterval    time.Duration
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL  string `yaml:"postgres_url"`
		RedisURL     string `yaml:"redis_url"`
		StoreBackend string `yaml:"store_backend"`
	} `yaml:"dependencies"`
	OTP struct {
		CodeLength            int `yaml:"code_length"`
		CodeTTLSeconds        int `yaml:"code_ttl_seconds"`
		MaxAttempts           int `yaml:"max_attempts"`
		ResendCooldownSeconds int `yaml:"resend_cooldown_seconds"`
		SendWindowSeconds     int `yaml:"send_window_seconds"`
		SendLimit             int `yaml:"send_limit"`
	} `yaml:"otp"`
	SMS struct {
		Backend  string `yaml:"backend"`
		Endpoint string `yaml:"endpoint"`
		APIKey   string `yaml:"api_key"`
		From     string `yaml:"from"`
	} `yaml:"sms"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// This order keeps local bootstrap simple while allowing environment-specific overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:             "auth-service",
		HTTPPort:              8080,
		GRPCPort:              9090,
		StoreBackend:          "redis",
		JWTKeyID:              "auth-key-1",
		AllowEphemeralJWT:     true,
		CodeLength:            6,
		CodeTTL:               5 * time.Minute,
		MaxAttempts:           3,
		ResendCooldown:        60 * time.Second,
		SendWindow:            time.Hour,
		SendLimit:             5,
		SMSBackend:            "log",
		SMSTimeout:            10 * time.Second,
		TokenTTL:              24 * time.Hour,
		RefreshGrace:          7 * 24 * time.Hour,
		RegistrationTicketTTL: 10 * time.Minute,
		MaxDBConns:            20,
		OutboxPollInterval:    2 * time.Second,
		OutboxBatchSize:       100,
		OutboxClaimTTL:        30 * time.Second,
		OutboxMaxRetries:      5,
		JanitorInterval:       time.Minute,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if f.Dependencies.StoreBackend != "" {
			cfg.StoreBackend = f.Dependencies.StoreBackend
		}
		if f.OTP.CodeLength > 0 {
			cfg.CodeLength = f.OTP.CodeLength
		}
		if f.OTP.CodeTTLSeconds > 0 {
			cfg.CodeTTL = time.Duration(f.OTP.CodeTTLSeconds) * time.Second
		}
		if f.OTP.MaxAttempts > 0 {
			cfg.MaxAttempts = f.OTP.MaxAttempts
		}
		if f.OTP.ResendCooldownSeconds > 0 {
			cfg.ResendCooldown = time.Duration(f.OTP.ResendCooldownSeconds) * time.Second
		}
		if f.OTP.SendWindowSeconds > 0 {
			cfg.SendWindow = time.Duration(f.OTP.SendWindowSeconds) * time.Second
		}
		if f.OTP.SendLimit > 0 {
			cfg.SendLimit = f.OTP.SendLimit
		}
		if f.SMS.Backend != "" {
			cfg.SMSBackend = f.SMS.Backend
		}
		if f.SMS.Endpoint != "" {
			cfg.SMSEndpoint = f.SMS.Endpoint
		}
		if f.SMS.APIKey != "" {
			cfg.SMSAPIKey = f.SMS.APIKey
		}
		if f.SMS.From != "" {
			cfg.SMSFrom = f.SMS.From
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(envOrDefault("STORE_BACKEND", cfg.StoreBackend)))
	cfg.JWTPrivateKeyPEM = envOrDefault("JWT_PRIVATE_KEY_PEM", cfg.JWTPrivateKeyPEM)
	cfg.JWTPublicKeyPEM = envOrDefault("JWT_PUBLIC_KEY_PEM", cfg.JWTPublicKeyPEM)
	cfg.JWTKeyID = envOrDefault("JWT_KEY_ID", cfg.JWTKeyID)
	cfg.AllowEphemeralJWT = envBool("JWT_ALLOW_EPHEMERAL", cfg.AllowEphemeralJWT)
	cfg.SMSBackend = strings.ToLower(strings.TrimSpace(envOrDefault("SMS_BACKEND", cfg.SMSBackend)))
	cfg.SMSEndpoint = envOrDefault("SMS_ENDPOINT", cfg.SMSEndpoint)
	cfg.SMSAPIKey = envOrDefault("SMS_API_KEY", cfg.SMSAPIKey)
	cfg.SMSFrom = envOrDefault("SMS_FROM", cfg.SMSFrom)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.CodeLength = envInt("OTP_CODE_LENGTH", cfg.CodeLength)
	cfg.MaxAttempts = envInt("OTP_MAX_ATTEMPTS", cfg.MaxAttempts)
	cfg.SendLimit = envInt("OTP_SEND_LIMIT", cfg.SendLimit)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)

	cfg.CodeTTL = time.Duration(envInt("OTP_CODE_TTL_SECONDS", int(cfg.CodeTTL.Seconds()))) * time.Second
	cfg.ResendCooldown = time.Duration(envInt("OTP_RESEND_COOLDOWN_SECONDS", int(cfg.ResendCooldown.Seconds()))) * time.Second
	cfg.SendWindow = time.Duration(envInt("OTP_SEND_WINDOW_SECONDS", int(cfg.SendWindow.Seconds()))) * time.Second
	cfg.SMSTimeout = time.Duration(envInt("SMS_TIMEOUT_SECONDS", int(cfg.SMSTimeout.Seconds()))) * time.Second
	cfg.TokenTTL = time.Duration(envInt("TOKEN_EXPIRY_HOURS", int(cfg.TokenTTL.Hours()))) * time.Hour
	cfg.RefreshGrace = time.Duration(envInt("REFRESH_GRACE_HOURS", int(cfg.RefreshGrace.Hours()))) * time.Hour
	cfg.RegistrationTicketTTL = time.Duration(envInt("REGISTRATION_TICKET_TTL_SECONDS", int(cfg.RegistrationTicketTTL.Seconds()))) * time.Second
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxClaimTTL = time.Duration(envInt("OUTBOX_CLAIM_TTL_SECONDS", int(cfg.OutboxClaimTTL.Seconds()))) * time.Second
	cfg.JanitorInterval = time.Duration(envInt("JANITOR_INTERVAL_SECONDS", int(cfg.JanitorInterval.Seconds()))) * time.Second

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.StoreBackend != "redis" && cfg.StoreBackend != "memory" {
		return Config{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	if cfg.StoreBackend == "redis" && cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if cfg.SMSBackend != "log" && cfg.SMSBackend != "http" {
		return Config{}, fmt.Errorf("unknown sms backend %q", cfg.SMSBackend)
	}
	if cfg.SMSBackend == "http" && cfg.SMSEndpoint == "" {
		return Config{}, fmt.Errorf("missing SMS_ENDPOINT for http sms backend")
	}
	if (cfg.JWTPrivateKeyPEM == "" || cfg.JWTPublicKeyPEM == "") && !cfg.AllowEphemeralJWT {
		return Config{}, fmt.Errorf("missing JWT_PRIVATE_KEY_PEM or JWT_PUBLIC_KEY_PEM")
	}

	return cfg, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}
