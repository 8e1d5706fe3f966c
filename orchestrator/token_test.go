package orchestrator

import (
	"errors"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret", "HS256", time.Hour)

	token, err := svc.Issue("session-123", []string{ScopeSessionActive})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	claims, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if claims.Subject != "session-123" {
		t.Errorf("subject = %q, want session-123", claims.Subject)
	}
	if len(claims.Scopes) != 1 || claims.Scopes[0] != ScopeSessionActive {
		t.Errorf("scopes = %v", claims.Scopes)
	}
	if time.Until(claims.ExpiresAt) <= 0 {
		t.Errorf("token already expired: %v", claims.ExpiresAt)
	}
}

func TestTokenAlgorithmHS384(t *testing.T) {
	svc := NewTokenService("test-secret", "HS384", time.Hour)

	token, err := svc.Issue("session-123", nil)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := svc.Verify(token); err != nil {
		t.Errorf("HS384 round trip failed: %v", err)
	}

	// A service configured for HS256 must not accept the HS384 token even
	// with the same secret.
	hs256 := NewTokenService("test-secret", "HS256", time.Hour)
	if _, err := hs256.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenUnknownAlgorithmFallsBack(t *testing.T) {
	svc := NewTokenService("test-secret", "RS512", time.Hour)

	token, err := svc.Issue("session-123", nil)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	claims, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if claims.Subject != "session-123" {
		t.Errorf("subject = %q", claims.Subject)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	svc := NewTokenService("test-secret", "HS256", time.Hour)
	other := NewTokenService("other-secret", "HS256", time.Hour)

	token, err := other.Issue("session-123", nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc := NewTokenService("test-secret", "HS256", -time.Minute)

	token, err := svc.Issue("session-123", nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := NewTokenService("test-secret", "HS256", time.Hour)
	if _, err := svc.Verify("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}
