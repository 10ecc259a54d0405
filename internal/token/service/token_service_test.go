package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	credentialdomain "github.com/ChrisTorres404/authcakes-sub002/internal/credential/domain"
	refreshdomain "github.com/ChrisTorres404/authcakes-sub002/internal/refreshtoken/domain"
	"github.com/ChrisTorres404/authcakes-sub002/internal/security"
	sessiondomain "github.com/ChrisTorres404/authcakes-sub002/internal/session/domain"
	sessionsvc "github.com/ChrisTorres404/authcakes-sub002/internal/session/service"
	tenantdomain "github.com/ChrisTorres404/authcakes-sub002/internal/tenant/domain"
	"github.com/ChrisTorres404/authcakes-sub002/internal/token"
)

type memCredentialRepo struct {
	mu sync.Mutex
	m  map[string]*credentialdomain.Credential
}

func (r *memCredentialRepo) GetByID(ctx context.Context, id string) (*credentialdomain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.m[id]; ok {
		c2 := *c
		return &c2, nil
	}
	return nil, nil
}

type memMembershipRepo struct {
	mu sync.Mutex
	m  []*tenantdomain.Membership
}

func (r *memMembershipRepo) ListMembershipsByUser(ctx context.Context, userID string) ([]*tenantdomain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*tenantdomain.Membership
	for _, m := range r.m {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

type memRefreshRepo struct {
	mu sync.Mutex
	m  map[string]*refreshdomain.RefreshToken
}

func newMemRefreshRepo() *memRefreshRepo {
	return &memRefreshRepo{m: make(map[string]*refreshdomain.RefreshToken)}
}

func (r *memRefreshRepo) Create(ctx context.Context, t *refreshdomain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t2 := *t
	r.m[t.ID] = &t2
	return nil
}

func (r *memRefreshRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*refreshdomain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.m {
		if t.TokenHash == tokenHash {
			t2 := *t
			return &t2, nil
		}
	}
	return nil, nil
}

func (r *memRefreshRepo) Revoke(ctx context.Context, id, revokedBy, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.m[id]; ok && !t.Revoked {
		t.Revoked = true
		t.RevokedAt = &at
		t.RevokedBy = revokedBy
		t.Reason = reason
	}
	return nil
}

func (r *memRefreshRepo) RevokeAllByUser(ctx context.Context, userID, revokedBy, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.m {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			t.RevokedAt = &at
			t.RevokedBy = revokedBy
			t.Reason = reason
		}
	}
	return nil
}

func (r *memRefreshRepo) RevokeAllBySession(ctx context.Context, sessionID, revokedBy, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.m {
		if t.SessionID == sessionID && !t.Revoked {
			t.Revoked = true
			t.RevokedAt = &at
			t.RevokedBy = revokedBy
			t.Reason = reason
		}
	}
	return nil
}

func (r *memRefreshRepo) SetReplacedBy(ctx context.Context, id, replacedByID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.m[id]; ok {
		t.ReplacedBy = replacedByID
	}
	return nil
}

type memSessionRepo struct {
	mu sync.Mutex
	m  map[string]*sessiondomain.Session
}

func (r *memSessionRepo) GetByID(ctx context.Context, id string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok {
		s2 := *s
		return &s2, nil
	}
	return nil, nil
}

func (r *memSessionRepo) ListActiveByUser(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	return nil, nil
}

func (r *memSessionRepo) Create(ctx context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s2 := *s
	r.m[s.ID] = &s2
	return nil
}

func (r *memSessionRepo) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (r *memSessionRepo) Revoke(ctx context.Context, id, revokedBy string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok && !s.Revoked {
		s.Revoked = true
		s.RevokedAt = &at
		s.RevokedBy = revokedBy
	}
	return nil
}

func (r *memSessionRepo) RevokeAllByUser(ctx context.Context, userID, revokedBy string, at time.Time, exceptID string) error {
	return nil
}

type fixture struct {
	svc      *Service
	refresh  *memRefreshRepo
	sessions *memSessionRepo
	members  *memMembershipRepo
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	issuer, err := token.NewTestIssuer()
	if err != nil {
		t.Fatalf("NewTestIssuer: %v", err)
	}
	creds := &memCredentialRepo{m: map[string]*credentialdomain.Credential{
		"user-1": {ID: "user-1", Email: "user@example.com", Role: "user", Active: true},
	}}
	members := &memMembershipRepo{m: []*tenantdomain.Membership{
		{ID: "m1", UserID: "user-1", TenantID: "tenant-a", Role: tenantdomain.RoleOwner},
		{ID: "m2", UserID: "user-1", TenantID: "tenant-b", Role: tenantdomain.RoleMember},
	}}
	refresh := newMemRefreshRepo()
	sessionRepo := &memSessionRepo{m: make(map[string]*sessiondomain.Session)}
	sessions := sessionsvc.NewManager(sessionRepo, 24*time.Hour, 30*time.Minute)
	svc := NewService(issuer, creds, members, refresh, sessions)
	// The issuer signs against the real clock; anchor the service clock there
	// too so advancing it crosses row expiry without invalidating signatures.
	f := &fixture{svc: svc, refresh: refresh, sessions: sessionRepo, members: members,
		now: time.Now().UTC()}
	svc.SetNow(func() time.Time { return f.now })
	return f
}

func TestService_GenerateTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bundle, err := f.svc.GenerateTokens(ctx, "user-1", sessiondomain.DeviceInfo{UserAgent: "test"})
	if err != nil {
		t.Fatalf("GenerateTokens: %v", err)
	}
	if bundle.AccessToken == "" || bundle.RefreshToken == "" || bundle.SessionID == "" {
		t.Fatal("bundle incomplete")
	}
	if bundle.User.Email != "user@example.com" {
		t.Errorf("user summary email = %q", bundle.User.Email)
	}

	claims, err := f.svc.ValidateToken(ctx, bundle.AccessToken, token.TypeAccess)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.TenantID != "tenant-a" {
		t.Errorf("default tenant = %q, want earliest membership tenant-a", claims.TenantID)
	}
	if len(claims.TenantAccess) != 2 {
		t.Errorf("tenant_access = %v", claims.TenantAccess)
	}
	if claims.SessionID != bundle.SessionID {
		t.Errorf("claims session = %q, bundle session = %q", claims.SessionID, bundle.SessionID)
	}

	row, _ := f.refresh.GetByTokenHash(ctx, security.HashToken(bundle.RefreshToken))
	if row == nil {
		t.Fatal("refresh row not persisted")
	}
	if row.UserID != "user-1" || row.SessionID != bundle.SessionID {
		t.Errorf("row binding = %s/%s", row.UserID, row.SessionID)
	}
}

func TestService_GenerateTokens_UnknownUser(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.GenerateTokens(context.Background(), "ghost", sessiondomain.DeviceInfo{}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("want ErrUserNotFound, got %v", err)
	}
}

func TestService_Rotate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bundle, err := f.svc.GenerateTokens(ctx, "user-1", sessiondomain.DeviceInfo{})
	if err != nil {
		t.Fatalf("GenerateTokens: %v", err)
	}

	rotated, err := f.svc.Rotate(ctx, bundle.RefreshToken, "user-1", bundle.SessionID)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if rotated.SessionID != bundle.SessionID {
		t.Errorf("rotation changed session: %q -> %q", bundle.SessionID, rotated.SessionID)
	}
	if rotated.RefreshToken == bundle.RefreshToken {
		t.Error("rotation must mint a new refresh token")
	}

	// The old token is dead, the new one lives.
	ok, _ := f.svc.IsRefreshTokenValid(ctx, bundle.RefreshToken)
	if ok {
		t.Error("old token should be invalid after rotation")
	}
	ok, _ = f.svc.IsRefreshTokenValid(ctx, rotated.RefreshToken)
	if !ok {
		t.Error("new token should be valid")
	}

	oldRow, _ := f.refresh.GetByTokenHash(ctx, security.HashToken(bundle.RefreshToken))
	if oldRow.Reason != "rotated" {
		t.Errorf("old row reason = %q, want rotated", oldRow.Reason)
	}
	newRow, _ := f.refresh.GetByTokenHash(ctx, security.HashToken(rotated.RefreshToken))
	if oldRow.ReplacedBy != newRow.ID {
		t.Errorf("replaced_by = %q, want %q", oldRow.ReplacedBy, newRow.ID)
	}
}

func TestService_Rotate_NoMemberships(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bundle, _ := f.svc.GenerateTokens(ctx, "user-1", sessiondomain.DeviceInfo{})

	f.members.mu.Lock()
	f.members.m = nil
	f.members.mu.Unlock()

	if _, err := f.svc.Rotate(ctx, bundle.RefreshToken, "user-1", bundle.SessionID); !errors.Is(err, ErrNoTenantMembership) {
		t.Errorf("want ErrNoTenantMembership, got %v", err)
	}
}

func TestService_IsRefreshTokenValid_LazyExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bundle, _ := f.svc.GenerateTokens(ctx, "user-1", sessiondomain.DeviceInfo{})

	f.now = f.now.Add(24*time.Hour + time.Minute)

	ok, err := f.svc.IsRefreshTokenValid(ctx, bundle.RefreshToken)
	if err != nil {
		t.Fatalf("IsRefreshTokenValid: %v", err)
	}
	if ok {
		t.Fatal("expired token should be invalid")
	}
	row, _ := f.refresh.GetByTokenHash(ctx, security.HashToken(bundle.RefreshToken))
	if !row.Revoked {
		t.Fatal("expired row should be revoked on read")
	}
	if row.RevokedBy != "system:expiry" || row.Reason != "expired" {
		t.Errorf("revoked_by/reason = %q/%q", row.RevokedBy, row.Reason)
	}
}

func TestService_IsRefreshTokenValid_Garbage(t *testing.T) {
	f := newFixture(t)
	ok, err := f.svc.IsRefreshTokenValid(context.Background(), "garbage")
	if err != nil {
		t.Fatalf("IsRefreshTokenValid: %v", err)
	}
	if ok {
		t.Fatal("unsigned token should be invalid")
	}
}

func TestService_RevokeRefreshToken_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bundle, _ := f.svc.GenerateTokens(ctx, "user-1", sessiondomain.DeviceInfo{})

	if err := f.svc.RevokeRefreshToken(ctx, bundle.RefreshToken, "user-1", "logout"); err != nil {
		t.Fatalf("RevokeRefreshToken: %v", err)
	}
	if err := f.svc.RevokeRefreshToken(ctx, bundle.RefreshToken, "user-1", "logout"); err != nil {
		t.Fatalf("second revoke should be no-op success, got %v", err)
	}
	if err := f.svc.RevokeRefreshToken(ctx, "unknown-token", "user-1", "logout"); err != nil {
		t.Fatalf("revoking unknown token should be no-op success, got %v", err)
	}
	ok, _ := f.svc.IsRefreshTokenValid(ctx, bundle.RefreshToken)
	if ok {
		t.Fatal("revoked token should be invalid")
	}
}

func TestService_RevokeSession_Cascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bundle, _ := f.svc.GenerateTokens(ctx, "user-1", sessiondomain.DeviceInfo{})
	rotated, err := f.svc.Rotate(ctx, bundle.RefreshToken, "user-1", bundle.SessionID)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	if err := f.svc.RevokeSession(ctx, bundle.SessionID, "admin", "compromise"); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}

	sess, _ := f.sessions.GetByID(ctx, bundle.SessionID)
	if !sess.Revoked {
		t.Fatal("session should be revoked")
	}
	ok, _ := f.svc.IsRefreshTokenValid(ctx, rotated.RefreshToken)
	if ok {
		t.Fatal("every refresh token bound to the session should be revoked")
	}
}

func TestService_RevokeAllUserTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b1, _ := f.svc.GenerateTokens(ctx, "user-1", sessiondomain.DeviceInfo{})
	b2, _ := f.svc.GenerateTokens(ctx, "user-1", sessiondomain.DeviceInfo{})

	if err := f.svc.RevokeAllUserTokens(ctx, "user-1", "password_changed"); err != nil {
		t.Fatalf("RevokeAllUserTokens: %v", err)
	}

	for _, tok := range []string{b1.RefreshToken, b2.RefreshToken} {
		if ok, _ := f.svc.IsRefreshTokenValid(ctx, tok); ok {
			t.Error("user token should be revoked")
		}
	}
	// Token revocation is independent of session revocation.
	sess, _ := f.sessions.GetByID(ctx, b1.SessionID)
	if sess.Revoked {
		t.Error("sessions are revoked separately, not by RevokeAllUserTokens")
	}
}

func TestService_ValidateToken_RefreshChecksRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bundle, _ := f.svc.GenerateTokens(ctx, "user-1", sessiondomain.DeviceInfo{})

	if _, err := f.svc.ValidateToken(ctx, bundle.RefreshToken, token.TypeRefresh); err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if err := f.svc.RevokeRefreshToken(ctx, bundle.RefreshToken, "user-1", "logout"); err != nil {
		t.Fatalf("RevokeRefreshToken: %v", err)
	}
	if _, err := f.svc.ValidateToken(ctx, bundle.RefreshToken, token.TypeRefresh); !errors.Is(err, token.ErrInvalidToken) {
		t.Errorf("revoked refresh: want ErrInvalidToken, got %v", err)
	}
}
