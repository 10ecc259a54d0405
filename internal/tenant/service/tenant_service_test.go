package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ChrisTorres404/authcakes-sub002/internal/tenant/domain"
)

type memTenantRepo struct {
	mu          sync.Mutex
	tenants     map[string]*domain.Tenant
	memberships map[string]*domain.Membership
	invitations map[string]*domain.Invitation
}

func newMemTenantRepo() *memTenantRepo {
	return &memTenantRepo{
		tenants:     make(map[string]*domain.Tenant),
		memberships: make(map[string]*domain.Membership),
		invitations: make(map[string]*domain.Invitation),
	}
}

func (r *memTenantRepo) GetTenantByID(ctx context.Context, id string) (*domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tenants[id]; ok {
		t2 := *t
		return &t2, nil
	}
	return nil, nil
}

func (r *memTenantRepo) CreateTenant(ctx context.Context, t *domain.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t2 := *t
	r.tenants[t.ID] = &t2
	return nil
}

func (r *memTenantRepo) GetMembershipByUserAndTenant(ctx context.Context, userID, tenantID string) (*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.memberships {
		if m.UserID == userID && m.TenantID == tenantID {
			m2 := *m
			return &m2, nil
		}
	}
	return nil, nil
}

func (r *memTenantRepo) ListMembershipsByUser(ctx context.Context, userID string) ([]*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Membership
	for _, m := range r.memberships {
		if m.UserID == userID {
			m2 := *m
			out = append(out, &m2)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memTenantRepo) ListMembershipsByTenant(ctx context.Context, tenantID string) ([]*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Membership
	for _, m := range r.memberships {
		if m.TenantID == tenantID {
			m2 := *m
			out = append(out, &m2)
		}
	}
	return out, nil
}

func (r *memTenantRepo) CreateMembership(ctx context.Context, m *domain.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m2 := *m
	r.memberships[m.ID] = &m2
	return nil
}

func (r *memTenantRepo) DeleteMembership(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.memberships, id)
	return nil
}

func (r *memTenantRepo) CreateInvitation(ctx context.Context, inv *domain.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i2 := *inv
	r.invitations[inv.ID] = &i2
	return nil
}

func (r *memTenantRepo) GetInvitationByToken(ctx context.Context, token string) (*domain.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invitations {
		if inv.Token == token {
			i2 := *inv
			return &i2, nil
		}
	}
	return nil, nil
}

func (r *memTenantRepo) AcceptInvitation(ctx context.Context, token string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invitations {
		if inv.Token == token && inv.AcceptedAt == nil && inv.ExpiresAt.After(at) {
			a := at
			inv.AcceptedAt = &a
			return true, nil
		}
	}
	return false, nil
}

type tenantFixture struct {
	svc  *Service
	repo *memTenantRepo
	now  time.Time
}

func newTenantFixture(t *testing.T) *tenantFixture {
	t.Helper()
	f := &tenantFixture{
		repo: newMemTenantRepo(),
		now:  time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.repo)
	f.svc.SetNow(func() time.Time { return f.now })
	return f
}

func TestCreateWithOwner(t *testing.T) {
	f := newTenantFixture(t)
	ctx := context.Background()

	tenant, err := f.svc.CreateWithOwner(ctx, "  Acme Corp  ", "user-1")
	if err != nil {
		t.Fatalf("CreateWithOwner: %v", err)
	}
	if tenant.Name != "Acme Corp" {
		t.Errorf("name = %q, want trimmed", tenant.Name)
	}
	if tenant.Status != domain.StatusActive {
		t.Errorf("status = %q, want active", tenant.Status)
	}

	m, err := f.repo.GetMembershipByUserAndTenant(ctx, "user-1", tenant.ID)
	if err != nil || m == nil {
		t.Fatalf("membership = %v, %v", m, err)
	}
	if m.Role != domain.RoleOwner {
		t.Errorf("role = %q, want owner", m.Role)
	}
}

func TestAddMember(t *testing.T) {
	f := newTenantFixture(t)
	ctx := context.Background()
	tenant, _ := f.svc.CreateWithOwner(ctx, "Acme", "owner-1")

	m, err := f.svc.AddMember(ctx, tenant.ID, "user-2", domain.RoleMember)
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if m.Role != domain.RoleMember {
		t.Errorf("role = %q, want member", m.Role)
	}

	if _, err := f.svc.AddMember(ctx, tenant.ID, "user-2", domain.RoleAdmin); !errors.Is(err, ErrDuplicateMembership) {
		t.Errorf("duplicate: want ErrDuplicateMembership, got %v", err)
	}
	if _, err := f.svc.AddMember(ctx, "no-such-tenant", "user-3", domain.RoleMember); !errors.Is(err, ErrTenantNotFound) {
		t.Errorf("unknown tenant: want ErrTenantNotFound, got %v", err)
	}
}

func TestRemoveMember_LastOwnerGuard(t *testing.T) {
	f := newTenantFixture(t)
	ctx := context.Background()
	tenant, _ := f.svc.CreateWithOwner(ctx, "Acme", "owner-1")
	if _, err := f.svc.AddMember(ctx, tenant.ID, "user-2", domain.RoleMember); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	if err := f.svc.RemoveMember(ctx, tenant.ID, "owner-1"); !errors.Is(err, ErrLastOwner) {
		t.Fatalf("sole owner: want ErrLastOwner, got %v", err)
	}

	// A second owner makes the first removable.
	if _, err := f.svc.AddMember(ctx, tenant.ID, "owner-2", domain.RoleOwner); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := f.svc.RemoveMember(ctx, tenant.ID, "owner-1"); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}

	if err := f.svc.RemoveMember(ctx, tenant.ID, "user-2"); err != nil {
		t.Fatalf("RemoveMember(member): %v", err)
	}
	if err := f.svc.RemoveMember(ctx, tenant.ID, "user-2"); !errors.Is(err, ErrMembershipNotFound) {
		t.Errorf("already removed: want ErrMembershipNotFound, got %v", err)
	}
}

func TestInvitationLifecycle(t *testing.T) {
	f := newTenantFixture(t)
	ctx := context.Background()
	tenant, _ := f.svc.CreateWithOwner(ctx, "Acme", "owner-1")

	inv, err := f.svc.Invite(ctx, tenant.ID, "  Invitee@Example.COM ", domain.RoleMember, "owner-1")
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if inv.Email != "invitee@example.com" {
		t.Errorf("email = %q, want normalized", inv.Email)
	}
	if inv.Token == "" {
		t.Fatal("invitation token missing")
	}

	m, err := f.svc.AcceptInvitation(ctx, inv.Token, "user-2")
	if err != nil {
		t.Fatalf("AcceptInvitation: %v", err)
	}
	if m.TenantID != tenant.ID || m.Role != domain.RoleMember {
		t.Errorf("membership = %+v", m)
	}

	// The token is spent.
	if _, err := f.svc.AcceptInvitation(ctx, inv.Token, "user-3"); !errors.Is(err, ErrInvitationInvalid) {
		t.Errorf("replay: want ErrInvitationInvalid, got %v", err)
	}
}

func TestAcceptInvitation_Expired(t *testing.T) {
	f := newTenantFixture(t)
	ctx := context.Background()
	tenant, _ := f.svc.CreateWithOwner(ctx, "Acme", "owner-1")
	inv, err := f.svc.Invite(ctx, tenant.ID, "invitee@example.com", domain.RoleMember, "owner-1")
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}

	f.now = f.now.Add(8 * 24 * time.Hour)

	if _, err := f.svc.AcceptInvitation(ctx, inv.Token, "user-2"); !errors.Is(err, ErrInvitationInvalid) {
		t.Errorf("expired: want ErrInvitationInvalid, got %v", err)
	}
}

func TestAcceptInvitation_ExistingMember(t *testing.T) {
	f := newTenantFixture(t)
	ctx := context.Background()
	tenant, _ := f.svc.CreateWithOwner(ctx, "Acme", "owner-1")
	inv, err := f.svc.Invite(ctx, tenant.ID, "owner@example.com", domain.RoleMember, "owner-1")
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}

	if _, err := f.svc.AcceptInvitation(ctx, inv.Token, "owner-1"); !errors.Is(err, ErrDuplicateMembership) {
		t.Errorf("existing member: want ErrDuplicateMembership, got %v", err)
	}
}

func TestMemberships_EarliestFirst(t *testing.T) {
	f := newTenantFixture(t)
	ctx := context.Background()

	first, _ := f.svc.CreateWithOwner(ctx, "First", "user-1")
	f.now = f.now.Add(time.Hour)
	second, _ := f.svc.CreateWithOwner(ctx, "Second", "user-1")

	got, err := f.svc.Memberships(ctx, "user-1")
	if err != nil {
		t.Fatalf("Memberships: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].TenantID != first.ID || got[1].TenantID != second.ID {
		t.Error("memberships must come back earliest created first")
	}
}
