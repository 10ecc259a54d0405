package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ChrisTorres404/authcakes-sub002/internal/session/domain"
)

type memSessionRepo struct {
	mu sync.Mutex
	m  map[string]*domain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{m: make(map[string]*domain.Session)}
}

func (r *memSessionRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok {
		s2 := *s
		return &s2, nil
	}
	return nil, nil
}

func (r *memSessionRepo) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.m {
		if s.UserID == userID && !s.Revoked {
			s2 := *s
			out = append(out, &s2)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return lastUsed(out[i]).After(lastUsed(out[j]))
	})
	return out, nil
}

func lastUsed(s *domain.Session) time.Time {
	if s.LastUsedAt != nil {
		return *s.LastUsedAt
	}
	return s.CreatedAt
}

func (r *memSessionRepo) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s2 := *s
	r.m[s.ID] = &s2
	return nil
}

func (r *memSessionRepo) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok {
		s.LastUsedAt = &at
	}
	return nil
}

func (r *memSessionRepo) Revoke(ctx context.Context, id, revokedBy string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok && !s.Revoked {
		s.Revoked = true
		s.Active = false
		s.RevokedAt = &at
		s.RevokedBy = revokedBy
	}
	return nil
}

func (r *memSessionRepo) RevokeAllByUser(ctx context.Context, userID, revokedBy string, at time.Time, exceptID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.m {
		if s.UserID == userID && !s.Revoked && s.ID != exceptID {
			s.Revoked = true
			s.Active = false
			s.RevokedAt = &at
			s.RevokedBy = revokedBy
		}
	}
	return nil
}

func newTestManager(t *testing.T) (*Manager, *memSessionRepo, *time.Time) {
	t.Helper()
	repo := newMemSessionRepo()
	m := NewManager(repo, 24*time.Hour, 30*time.Minute)
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	m.SetNow(func() time.Time { return now })
	return m, repo, &now
}

func TestManager_CreateAndValidate(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, "user-1", domain.DeviceInfo{IPAddress: "10.0.0.1", UserAgent: "test"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !s.Active || s.Revoked {
		t.Fatal("new session should be active and not revoked")
	}

	ok, err := m.IsValid(ctx, "user-1", s.ID)
	if err != nil {
		t.Fatalf("IsValid: %v", err)
	}
	if !ok {
		t.Fatal("fresh session should be valid")
	}
}

func TestManager_IsValidRejectsWrongOwner(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	s, _ := m.Create(ctx, "user-1", domain.DeviceInfo{})

	ok, err := m.IsValid(ctx, "user-2", s.ID)
	if err != nil {
		t.Fatalf("IsValid: %v", err)
	}
	if ok {
		t.Fatal("session must not validate for a different user")
	}
	// Ownership failure must not revoke the session for its real owner.
	ok, _ = m.IsValid(ctx, "user-1", s.ID)
	if !ok {
		t.Fatal("owner check should leave the session untouched")
	}
}

func TestManager_LazyInactivityRevocation(t *testing.T) {
	m, repo, now := newTestManager(t)
	ctx := context.Background()
	s, _ := m.Create(ctx, "user-1", domain.DeviceInfo{})

	*now = now.Add(31 * time.Minute)

	ok, err := m.IsValid(ctx, "user-1", s.ID)
	if err != nil {
		t.Fatalf("IsValid: %v", err)
	}
	if ok {
		t.Fatal("idle session should be invalid")
	}
	stored, _ := repo.GetByID(ctx, s.ID)
	if !stored.Revoked {
		t.Fatal("idle session should have been revoked on read")
	}
	if stored.RevokedBy != "system:expiry" {
		t.Errorf("revoked_by = %q, want system:expiry", stored.RevokedBy)
	}
}

func TestManager_ActivityExtendsIdleWindow(t *testing.T) {
	m, _, now := newTestManager(t)
	ctx := context.Background()
	s, _ := m.Create(ctx, "user-1", domain.DeviceInfo{})

	*now = now.Add(20 * time.Minute)
	if err := m.UpdateActivity(ctx, s.ID); err != nil {
		t.Fatalf("UpdateActivity: %v", err)
	}
	*now = now.Add(20 * time.Minute)

	ok, _ := m.IsValid(ctx, "user-1", s.ID)
	if !ok {
		t.Fatal("session used 20m ago should still be valid")
	}
}

func TestManager_HardExpiry(t *testing.T) {
	m, repo, now := newTestManager(t)
	ctx := context.Background()
	s, _ := m.Create(ctx, "user-1", domain.DeviceInfo{})

	// Keep the idle window alive but pass the absolute lifetime.
	for i := 0; i < 24*60/20; i++ {
		*now = now.Add(20 * time.Minute)
		_ = m.UpdateActivity(ctx, s.ID)
	}
	*now = now.Add(time.Minute)

	ok, _ := m.IsValid(ctx, "user-1", s.ID)
	if ok {
		t.Fatal("session past its lifetime should be invalid regardless of activity")
	}
	stored, _ := repo.GetByID(ctx, s.ID)
	if !stored.Revoked {
		t.Fatal("expired session should have been revoked on read")
	}
}

func TestManager_RemainingTime(t *testing.T) {
	m, _, now := newTestManager(t)
	ctx := context.Background()
	s, _ := m.Create(ctx, "user-1", domain.DeviceInfo{})

	secs, err := m.RemainingTime(ctx, s.ID)
	if err != nil {
		t.Fatalf("RemainingTime: %v", err)
	}
	if secs != 30*60 {
		t.Errorf("remaining = %d, want %d", secs, 30*60)
	}

	*now = now.Add(time.Hour)
	secs, _ = m.RemainingTime(ctx, s.ID)
	if secs != 0 {
		t.Errorf("remaining after idle = %d, want 0", secs)
	}

	secs, _ = m.RemainingTime(ctx, "no-such-session")
	if secs != 0 {
		t.Errorf("remaining for unknown session = %d, want 0", secs)
	}
}

func TestManager_RevokeIdempotent(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()
	s, _ := m.Create(ctx, "user-1", domain.DeviceInfo{})

	if err := m.Revoke(ctx, s.ID, "user-1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := m.Revoke(ctx, s.ID, "someone-else"); err != nil {
		t.Fatalf("second Revoke should be a no-op success, got %v", err)
	}
	stored, _ := repo.GetByID(ctx, s.ID)
	if stored.RevokedBy != "user-1" {
		t.Errorf("revoked_by = %q, first revoker should win", stored.RevokedBy)
	}
}

func TestManager_RevokeOwned(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	s, _ := m.Create(ctx, "user-1", domain.DeviceInfo{})

	if err := m.RevokeOwned(ctx, s.ID, "user-2"); !errors.Is(err, ErrSessionNotOwned) {
		t.Errorf("foreign revoke: want ErrSessionNotOwned, got %v", err)
	}
	if err := m.RevokeOwned(ctx, "missing", "user-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("missing session: want ErrSessionNotFound, got %v", err)
	}
	if err := m.RevokeOwned(ctx, s.ID, "user-1"); err != nil {
		t.Fatalf("RevokeOwned: %v", err)
	}
	ok, _ := m.IsValid(ctx, "user-1", s.ID)
	if ok {
		t.Fatal("revoked session should be invalid")
	}
}

func TestManager_RevokeAllForUserExcept(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	s1, _ := m.Create(ctx, "user-1", domain.DeviceInfo{})
	s2, _ := m.Create(ctx, "user-1", domain.DeviceInfo{})
	other, _ := m.Create(ctx, "user-2", domain.DeviceInfo{})

	if err := m.RevokeAllForUser(ctx, "user-1", "user-1", s2.ID); err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}

	if ok, _ := m.IsValid(ctx, "user-1", s1.ID); ok {
		t.Error("s1 should be revoked")
	}
	if ok, _ := m.IsValid(ctx, "user-1", s2.ID); !ok {
		t.Error("excepted session should survive")
	}
	if ok, _ := m.IsValid(ctx, "user-2", other.ID); !ok {
		t.Error("other user's session should be untouched")
	}
}

func TestManager_ListActiveOrder(t *testing.T) {
	m, _, now := newTestManager(t)
	ctx := context.Background()
	s1, _ := m.Create(ctx, "user-1", domain.DeviceInfo{})
	*now = now.Add(time.Minute)
	s2, _ := m.Create(ctx, "user-1", domain.DeviceInfo{})
	*now = now.Add(time.Minute)
	_ = m.UpdateActivity(ctx, s1.ID)

	list, err := m.ListActive(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ID != s1.ID || list[1].ID != s2.ID {
		t.Errorf("order = [%s %s], want most recently used first", list[0].ID, list[1].ID)
	}
}
