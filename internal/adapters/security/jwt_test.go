package security

import (
	"errors"
	"testing"
	"time"

	"github.com/bazarly/auth-service/internal/domain"
	"github.com/bazarly/auth-service/internal/ports"
)

func TestJWTSignAndValidateRoundTrip(t *testing.T) {
	t.Parallel()

	signer, err := NewEphemeralJWTSigner("test-key-1")
	if err != nil {
		t.Fatalf("ephemeral signer: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	token, err := signer.Sign(ports.AuthClaims{
		IdentityID:  "idr_01HZXW3T9V3N3F4S3K1B2C3D4E",
		PhoneNumber: "+14155550177",
		IssuedAt:    now,
		ExpiresAt:   now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	claims, err := signer.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if claims.IdentityID != "idr_01HZXW3T9V3N3F4S3K1B2C3D4E" {
		t.Fatalf("unexpected subject %q", claims.IdentityID)
	}
	if claims.PhoneNumber != "+14155550177" {
		t.Fatalf("unexpected phone %q", claims.PhoneNumber)
	}
	if claims.KeyID != "test-key-1" {
		t.Fatalf("unexpected kid %q", claims.KeyID)
	}
	if !claims.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %s", claims.ExpiresAt)
	}
}

func TestJWTExpiredToken(t *testing.T) {
	t.Parallel()

	signer, err := NewEphemeralJWTSigner("test-key-1")
	if err != nil {
		t.Fatalf("ephemeral signer: %v", err)
	}

	now := time.Now().UTC()
	token, err := signer.Sign(ports.AuthClaims{
		IdentityID: "idr_expired",
		IssuedAt:   now.Add(-2 * time.Hour),
		ExpiresAt:  now.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if _, err := signer.ParseAndValidate(token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected token-expired sentinel, got %v", err)
	}

	// ParseExpired skips expiry checks but still verifies the signature.
	claims, err := signer.ParseExpired(token)
	if err != nil {
		t.Fatalf("parse expired failed: %v", err)
	}
	if claims.IdentityID != "idr_expired" {
		t.Fatalf("unexpected subject %q", claims.IdentityID)
	}
}

func TestJWTRejectsForeignSignature(t *testing.T) {
	t.Parallel()

	signerA, err := NewEphemeralJWTSigner("key-a")
	if err != nil {
		t.Fatalf("signer a: %v", err)
	}
	signerB, err := NewEphemeralJWTSigner("key-b")
	if err != nil {
		t.Fatalf("signer b: %v", err)
	}

	now := time.Now().UTC()
	token, err := signerA.Sign(ports.AuthClaims{
		IdentityID: "idr_forged",
		IssuedAt:   now,
		ExpiresAt:  now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if _, err := signerB.ParseAndValidate(token); err == nil {
		t.Fatalf("foreign signature accepted")
	}
	if _, err := signerB.ParseExpired(token); err == nil {
		t.Fatalf("foreign signature accepted by lenient parser")
	}
}

func TestJWTPublicJWKs(t *testing.T) {
	t.Parallel()

	signer, err := NewEphemeralJWTSigner("jwks-key")
	if err != nil {
		t.Fatalf("ephemeral signer: %v", err)
	}
	keys, err := signer.PublicJWKs()
	if err != nil {
		t.Fatalf("jwks failed: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected single key, got %d", len(keys))
	}
	key := keys[0]
	if key["kid"] != "jwks-key" || key["kty"] != "RSA" || key["alg"] != "RS256" {
		t.Fatalf("unexpected jwk %+v", key)
	}
	if key["n"] == "" || key["e"] == "" {
		t.Fatalf("missing modulus/exponent")
	}
}

func TestBcryptCodeHasher(t *testing.T) {
	t.Parallel()

	hasher := NewBcryptCodeHasher()
	hash, err := hasher.Hash("482913")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if hash == "482913" {
		t.Fatalf("code stored in plaintext")
	}
	if err := hasher.Compare(hash, "482913"); err != nil {
		t.Fatalf("matching code rejected: %v", err)
	}
	if err := hasher.Compare(hash, "000000"); err == nil {
		t.Fatalf("wrong code accepted")
	}
}
