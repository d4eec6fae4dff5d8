package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bazarly/auth-service/internal/adapters/cache"
	"github.com/bazarly/auth-service/internal/adapters/security"
	"github.com/bazarly/auth-service/internal/application"
	"github.com/bazarly/auth-service/internal/domain"
	"github.com/bazarly/auth-service/internal/ids"
	"github.com/bazarly/auth-service/internal/ports"
)

// memDirectory is an in-process stand-in for the Postgres-backed directory.
type memDirectory struct {
	mu      sync.Mutex
	byPhone map[string]domain.Identity
	byID    map[string]domain.Identity
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		byPhone: make(map[string]domain.Identity),
		byID:    make(map[string]domain.Identity),
	}
}

func (d *memDirectory) CreateWithOutboxTx(_ context.Context, params ports.CreateIdentityParams, _ ports.OutboxEvent) (domain.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byPhone[params.PhoneNumber]; ok {
		return domain.Identity{}, domain.ErrDuplicateIdentity
	}
	identity := domain.Identity{
		IdentityID:  ids.NewIdentityID(),
		PhoneNumber: params.PhoneNumber,
		DisplayName: params.DisplayName,
		Profile:     params.Profile,
		CreatedAt:   params.CreatedAtUTC,
		UpdatedAt:   params.CreatedAtUTC,
	}
	d.byPhone[params.PhoneNumber] = identity
	d.byID[identity.IdentityID] = identity
	return identity, nil
}

func (d *memDirectory) GetByPhoneNumber(_ context.Context, phoneNumber string) (domain.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	identity, ok := d.byPhone[phoneNumber]
	if !ok {
		return domain.Identity{}, domain.ErrNotFound
	}
	return identity, nil
}

func (d *memDirectory) GetByID(_ context.Context, identityID string) (domain.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	identity, ok := d.byID[identityID]
	if !ok {
		return domain.Identity{}, domain.ErrNotFound
	}
	return identity, nil
}

func (d *memDirectory) UpdateIdentity(_ context.Context, identityID, displayName string, profile map[string]string, updatedAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	identity, ok := d.byID[identityID]
	if !ok {
		return domain.ErrNotFound
	}
	identity.DisplayName = displayName
	identity.Profile = profile
	identity.UpdatedAt = updatedAt
	d.byID[identityID] = identity
	d.byPhone[identity.PhoneNumber] = identity
	return nil
}

func (d *memDirectory) SetDeactivated(_ context.Context, identityID string, deactivated bool, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	identity, ok := d.byID[identityID]
	if !ok {
		return domain.ErrNotFound
	}
	identity.Deactivated = deactivated
	if deactivated {
		identity.DeactivatedAt = &at
	}
	d.byID[identityID] = identity
	d.byPhone[identity.PhoneNumber] = identity
	return nil
}

func (d *memDirectory) ReactivateWithOutboxTx(_ context.Context, identityID string, at time.Time, _ ports.OutboxEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	identity, ok := d.byID[identityID]
	if !ok {
		return domain.ErrNotFound
	}
	identity.Deactivated = false
	identity.ReactivatedAt = &at
	d.byID[identityID] = identity
	d.byPhone[identity.PhoneNumber] = identity
	return nil
}

type captureSMS struct {
	mu       sync.Mutex
	messages []string
}

func (s *captureSMS) Send(_ context.Context, _, message string) (ports.DispatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	return ports.DispatchResult{ProviderMessageID: fmt.Sprintf("cap-%d", len(s.messages))}, nil
}

var codePattern = regexp.MustCompile(`[0-9]{6}`)

func (s *captureSMS) lastCode(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		t.Fatal("no SMS captured")
	}
	code := codePattern.FindString(s.messages[len(s.messages)-1])
	if code == "" {
		t.Fatalf("no code in message %q", s.messages[len(s.messages)-1])
	}
	return code
}

func newTestRouter(t *testing.T) (http.Handler, *captureSMS) {
	t.Helper()

	signer, err := security.NewEphemeralJWTSigner("test-key-1")
	if err != nil {
		t.Fatalf("create signer: %v", err)
	}
	sms := &captureSMS{}
	service := application.NewService(application.Dependencies{
		Config: application.Config{
			AppName:               "auth-service-test",
			CodeLength:            6,
			CodeTTL:               5 * time.Minute,
			MaxAttempts:           3,
			SendWindow:            time.Hour,
			SendLimit:             5,
			TokenTTL:              time.Hour,
			RefreshGrace:          24 * time.Hour,
			RegistrationTicketTTL: 10 * time.Minute,
		},
		Directory: newMemDirectory(),
		Sessions:  cache.NewMemoryOTPSessionStore(),
		RateLimit: cache.NewMemoryRateLimitStore(),
		Tickets:   cache.NewMemoryRegistrationTicketStore(),
		SMS:       sms,
		Hasher:    security.NewBcryptCodeHasher(),
		Signer:    signer,
	})
	return NewRouter(NewHandler(service, nil)), sms
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
	Details map[string]any  `json:"details"`
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any, bearer string) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec.Code, env
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t)

	status, env := doRequest(t, router, http.MethodGet, "/healthz", nil, "")
	if status != http.StatusOK || env.Message != "ok" {
		t.Fatalf("healthz: status %d message %q", status, env.Message)
	}
	status, env = doRequest(t, router, http.MethodGet, "/readyz", nil, "")
	if status != http.StatusOK || env.Message != "ready" {
		t.Fatalf("readyz: status %d message %q", status, env.Message)
	}
}

func TestFullAuthenticationFlow(t *testing.T) {
	t.Parallel()

	router, sms := newTestRouter(t)

	status, env := doRequest(t, router, http.MethodPost, "/auth/v1/otp/send",
		map[string]string{"phone_number": "+1 (415) 555-0177"}, "")
	if status != http.StatusOK {
		t.Fatalf("otp send: status %d code %q", status, env.Code)
	}
	var sent application.SendCodeResponse
	if err := json.Unmarshal(env.Data, &sent); err != nil {
		t.Fatalf("decode send data: %v", err)
	}
	if sent.PhoneNumber != "+14155550177" {
		t.Fatalf("phone not canonicalized: %q", sent.PhoneNumber)
	}

	// A wrong code burns an attempt but keeps the session alive.
	status, env = doRequest(t, router, http.MethodPost, "/auth/v1/otp/verify",
		map[string]string{"phone_number": "+14155550177", "code": "000000"}, "")
	if status != http.StatusUnauthorized || env.Code != "INVALID_CODE" {
		t.Fatalf("wrong code: status %d code %q", status, env.Code)
	}
	if remaining, ok := env.Details["attempts_remaining"].(float64); !ok || remaining != 2 {
		t.Fatalf("attempts_remaining detail missing or wrong: %+v", env.Details)
	}

	status, env = doRequest(t, router, http.MethodPost, "/auth/v1/otp/verify",
		map[string]string{"phone_number": "+14155550177", "code": sms.lastCode(t)}, "")
	if status != http.StatusOK {
		t.Fatalf("verify: status %d code %q", status, env.Code)
	}
	var verified application.VerifyCodeResponse
	if err := json.Unmarshal(env.Data, &verified); err != nil {
		t.Fatalf("decode verify data: %v", err)
	}
	if verified.IdentityExists {
		t.Fatal("new phone number reported as existing identity")
	}
	if verified.RegistrationToken == "" || verified.Token != "" {
		t.Fatalf("expected registration ticket only, got %+v", verified)
	}

	status, env = doRequest(t, router, http.MethodPost, "/auth/v1/register/complete",
		map[string]any{
			"registration_token": verified.RegistrationToken,
			"display_name":       "  Dana  ",
			"profile":            map[string]string{"lang": "en"},
		}, "")
	if status != http.StatusCreated {
		t.Fatalf("register: status %d code %q", status, env.Code)
	}
	var registered application.CompleteRegistrationResponse
	if err := json.Unmarshal(env.Data, &registered); err != nil {
		t.Fatalf("decode register data: %v", err)
	}
	if !strings.HasPrefix(registered.IdentityID, "idr_") {
		t.Fatalf("identity id %q missing prefix", registered.IdentityID)
	}
	if registered.Token == "" {
		t.Fatal("registration returned no session token")
	}

	status, env = doRequest(t, router, http.MethodGet, "/auth/v1/me", nil, registered.Token)
	if status != http.StatusOK {
		t.Fatalf("me: status %d code %q", status, env.Code)
	}
	var view application.IdentityView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode me data: %v", err)
	}
	if view.PhoneNumber != "+14155550177" || view.DisplayName != "Dana" {
		t.Fatalf("unexpected identity view: %+v", view)
	}

	status, env = doRequest(t, router, http.MethodPost, "/auth/v1/refresh", nil, registered.Token)
	if status != http.StatusOK {
		t.Fatalf("refresh: status %d code %q", status, env.Code)
	}
	var refreshed application.RefreshResponse
	if err := json.Unmarshal(env.Data, &refreshed); err != nil {
		t.Fatalf("decode refresh data: %v", err)
	}
	if refreshed.Token == "" {
		t.Fatal("refresh returned no token")
	}

	status, env = doRequest(t, router, http.MethodPut, "/auth/v1/me",
		map[string]any{"display_name": "Dana K.", "profile": map[string]string{"lang": "kk"}}, refreshed.Token)
	if status != http.StatusOK {
		t.Fatalf("profile update: status %d code %q", status, env.Code)
	}
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode updated view: %v", err)
	}
	if view.DisplayName != "Dana K." || view.Profile["lang"] != "kk" {
		t.Fatalf("profile update not reflected: %+v", view)
	}

	status, env = doRequest(t, router, http.MethodDelete, "/auth/v1/me", nil, refreshed.Token)
	if status != http.StatusOK {
		t.Fatalf("deactivate: status %d code %q", status, env.Code)
	}
	status, env = doRequest(t, router, http.MethodGet, "/auth/v1/me", nil, refreshed.Token)
	if status != http.StatusUnauthorized {
		t.Fatalf("me after deactivation: status %d code %q", status, env.Code)
	}
}

func TestMeRequiresBearerToken(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t)

	status, env := doRequest(t, router, http.MethodGet, "/auth/v1/me", nil, "")
	if status != http.StatusUnauthorized || env.Code != "UNAUTHORIZED" {
		t.Fatalf("missing bearer: status %d code %q", status, env.Code)
	}
	status, env = doRequest(t, router, http.MethodGet, "/auth/v1/me", nil, "not-a-jwt")
	if status != http.StatusUnauthorized {
		t.Fatalf("garbage token: status %d code %q", status, env.Code)
	}
}

func TestSendRejectsBadInput(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t)

	status, env := doRequest(t, router, http.MethodPost, "/auth/v1/otp/send",
		map[string]string{"phone_number": "415-555-0177"}, "")
	if status != http.StatusBadRequest || env.Code != "INVALID_PHONE_FORMAT" {
		t.Fatalf("missing country code: status %d code %q", status, env.Code)
	}

	status, env = doRequest(t, router, http.MethodPost, "/auth/v1/otp/send",
		map[string]string{"phone_number": "+14155550177", "unexpected": "field"}, "")
	if status != http.StatusBadRequest || env.Code != "VALIDATION_ERROR" {
		t.Fatalf("unknown field: status %d code %q", status, env.Code)
	}
}

func TestReadIP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{name: "ipv4 host port", remoteAddr: "203.0.113.9:51234", want: "203.0.113.9"},
		{name: "ipv6 host port", remoteAddr: "[2001:db8::1]:51234", want: "2001:db8::1"},
		{name: "ipv6 loopback", remoteAddr: "[::1]:54321", want: "::1"},
		{name: "bare host", remoteAddr: "203.0.113.9", want: "203.0.113.9"},
		{name: "forwarded wins", remoteAddr: "10.0.0.1:80", forwarded: "198.51.100.7, 10.0.0.1", want: "198.51.100.7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if got := readIP(req); got != tc.want {
				t.Fatalf("readIP(%q) = %q, want %q", tc.remoteAddr, got, tc.want)
			}
		})
	}
}

func TestJWKSEndpoint(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("jwks: status %d", rec.Code)
	}
	var body struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode jwks: %v", err)
	}
	if len(body.Keys) != 1 || body.Keys[0]["kid"] != "test-key-1" {
		t.Fatalf("unexpected jwks payload: %+v", body.Keys)
	}
}
