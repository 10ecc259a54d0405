package token

import (
	"errors"
	"testing"
	"time"
)

func testIdentity() Identity {
	return Identity{
		UserID:       "user-1",
		Email:        "user@example.com",
		Role:         "user",
		TenantID:     "tenant-1",
		TenantAccess: []string{"tenant-1", "tenant-2"},
		SessionID:    "session-1",
	}
}

func TestIssuer_IssueAndValidateAccess(t *testing.T) {
	issuer, err := NewTestIssuer()
	if err != nil {
		t.Fatalf("NewTestIssuer: %v", err)
	}

	tok, jti, exp, err := issuer.IssueAccess(testIdentity())
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if tok == "" || jti == "" {
		t.Fatal("expected non-empty token and jti")
	}
	if !exp.After(time.Now()) {
		t.Fatal("expected future expiry")
	}

	claims, err := issuer.Validate(tok, TypeAccess)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("sub = %q, want user-1", claims.Subject)
	}
	if claims.Email != "user@example.com" {
		t.Errorf("email = %q", claims.Email)
	}
	if claims.TenantID != "tenant-1" {
		t.Errorf("tenant_id = %q", claims.TenantID)
	}
	if len(claims.TenantAccess) != 2 {
		t.Errorf("tenant_access = %v", claims.TenantAccess)
	}
	if claims.SessionID != "session-1" {
		t.Errorf("session_id = %q", claims.SessionID)
	}
	if claims.TokenType != TypeAccess {
		t.Errorf("type = %q, want access", claims.TokenType)
	}
}

func TestIssuer_TypeMismatch(t *testing.T) {
	issuer, err := NewTestIssuer()
	if err != nil {
		t.Fatalf("NewTestIssuer: %v", err)
	}
	access, _, _, err := issuer.IssueAccess(testIdentity())
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	refresh, _, _, err := issuer.IssueRefresh(testIdentity())
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}

	if _, err := issuer.Validate(access, TypeRefresh); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("access validated as refresh: want ErrInvalidToken, got %v", err)
	}
	if _, err := issuer.Validate(refresh, TypeAccess); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh validated as access: want ErrInvalidToken, got %v", err)
	}
}

func TestIssuer_ExpiredToken(t *testing.T) {
	issuer, err := NewTestIssuerTTL(time.Millisecond, time.Millisecond)
	if err != nil {
		t.Fatalf("NewTestIssuerTTL: %v", err)
	}
	tok, _, _, err := issuer.IssueAccess(testIdentity())
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := issuer.Validate(tok, TypeAccess); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token: want ErrInvalidToken, got %v", err)
	}
}

func TestIssuer_GarbageToken(t *testing.T) {
	issuer, err := NewTestIssuer()
	if err != nil {
		t.Fatalf("NewTestIssuer: %v", err)
	}
	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := issuer.Validate(tok, TypeAccess); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Validate(%q): want ErrInvalidToken, got %v", tok, err)
		}
	}
}

func TestNewIssuer_RejectsNonPositiveTTL(t *testing.T) {
	if _, err := NewTestIssuerTTL(0, time.Hour); err == nil {
		t.Error("zero access TTL should fail")
	}
	if _, err := NewTestIssuerTTL(time.Hour, -time.Minute); err == nil {
		t.Error("negative refresh TTL should fail")
	}
}
