// Package service implements tenant membership and invitation management.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ChrisTorres404/authcakes-sub002/internal/security"
	"github.com/ChrisTorres404/authcakes-sub002/internal/tenant/domain"
)

// Sentinel errors for the tenant service; the caller maps them outward.
var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrDuplicateMembership = errors.New("user is already a member of the tenant")
	ErrMembershipNotFound  = errors.New("membership not found")
	ErrLastOwner           = errors.New("cannot remove the last owner of a tenant")
	ErrInvitationInvalid   = errors.New("invitation is invalid or expired")
)

const invitationTTL = 7 * 24 * time.Hour

// TenantRepo is the minimal tenant repository needed by the service.
type TenantRepo interface {
	GetTenantByID(ctx context.Context, id string) (*domain.Tenant, error)
	CreateTenant(ctx context.Context, t *domain.Tenant) error
	GetMembershipByUserAndTenant(ctx context.Context, userID, tenantID string) (*domain.Membership, error)
	ListMembershipsByUser(ctx context.Context, userID string) ([]*domain.Membership, error)
	ListMembershipsByTenant(ctx context.Context, tenantID string) ([]*domain.Membership, error)
	CreateMembership(ctx context.Context, m *domain.Membership) error
	DeleteMembership(ctx context.Context, id string) error
	CreateInvitation(ctx context.Context, inv *domain.Invitation) error
	GetInvitationByToken(ctx context.Context, token string) (*domain.Invitation, error)
	AcceptInvitation(ctx context.Context, token string, at time.Time) (bool, error)
}

// Service manages tenants, memberships, and invitations.
type Service struct {
	repo TenantRepo
	nowF func() time.Time
}

// NewService returns a tenant Service backed by repo.
func NewService(repo TenantRepo) *Service {
	return &Service{repo: repo, nowF: func() time.Time { return time.Now().UTC() }}
}

// SetNow overrides the clock. For tests only.
func (s *Service) SetNow(f func() time.Time) { s.nowF = f }

// CreateWithOwner creates a tenant and binds ownerUserID as its owner.
func (s *Service) CreateWithOwner(ctx context.Context, name, ownerUserID string) (*domain.Tenant, error) {
	now := s.nowF()
	t := &domain.Tenant{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(name),
		Status:    domain.StatusActive,
		CreatedAt: now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.CreateTenant(ctx, t); err != nil {
		return nil, err
	}
	m := &domain.Membership{
		ID:        uuid.New().String(),
		UserID:    ownerUserID,
		TenantID:  t.ID,
		Role:      domain.RoleOwner,
		CreatedAt: now,
	}
	if err := s.repo.CreateMembership(ctx, m); err != nil {
		return nil, err
	}
	return t, nil
}

// AddMember binds the user to the tenant with the given role. Duplicate
// membership is a conflict.
func (s *Service) AddMember(ctx context.Context, tenantID, userID string, role domain.Role) (*domain.Membership, error) {
	t, err := s.repo.GetTenantByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTenantNotFound
	}
	existing, err := s.repo.GetMembershipByUserAndTenant(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateMembership
	}
	m := &domain.Membership{
		ID:        uuid.New().String(),
		UserID:    userID,
		TenantID:  tenantID,
		Role:      role,
		CreatedAt: s.nowF(),
	}
	if err := s.repo.CreateMembership(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// RemoveMember removes the user's membership. Removing the last owner is rejected.
func (s *Service) RemoveMember(ctx context.Context, tenantID, userID string) error {
	m, err := s.repo.GetMembershipByUserAndTenant(ctx, userID, tenantID)
	if err != nil {
		return err
	}
	if m == nil {
		return ErrMembershipNotFound
	}
	if m.Role == domain.RoleOwner {
		all, err := s.repo.ListMembershipsByTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		owners := 0
		for _, other := range all {
			if other.Role == domain.RoleOwner {
				owners++
			}
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}
	return s.repo.DeleteMembership(ctx, m.ID)
}

// Invite creates a one-time invitation for email to join the tenant.
// Returns the invitation; the token is dispatched out-of-band by the caller.
func (s *Service) Invite(ctx context.Context, tenantID, email string, role domain.Role, invitedBy string) (*domain.Invitation, error) {
	t, err := s.repo.GetTenantByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTenantNotFound
	}
	tok, err := security.GenerateOpaqueToken(32)
	if err != nil {
		return nil, err
	}
	now := s.nowF()
	inv := &domain.Invitation{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Email:     strings.TrimSpace(strings.ToLower(email)),
		Role:      role,
		Token:     tok,
		ExpiresAt: now.Add(invitationTTL),
		InvitedBy: invitedBy,
		CreatedAt: now,
	}
	if err := s.repo.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// AcceptInvitation consumes the invitation token and creates the membership
// for userID. The accepted_at stamp is a conditional update, so a replay of
// the same token fails with ErrInvitationInvalid.
func (s *Service) AcceptInvitation(ctx context.Context, token, userID string) (*domain.Membership, error) {
	inv, err := s.repo.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil || inv.AcceptedAt != nil || !inv.ExpiresAt.After(s.nowF()) {
		return nil, ErrInvitationInvalid
	}
	existing, err := s.repo.GetMembershipByUserAndTenant(ctx, userID, inv.TenantID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateMembership
	}
	ok, err := s.repo.AcceptInvitation(ctx, token, s.nowF())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvitationInvalid
	}
	m := &domain.Membership{
		ID:        uuid.New().String(),
		UserID:    userID,
		TenantID:  inv.TenantID,
		Role:      inv.Role,
		CreatedAt: s.nowF(),
	}
	if err := s.repo.CreateMembership(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Memberships returns the user's memberships, earliest created first. The
// first element is the user's default tenant; store order is never relied on.
func (s *Service) Memberships(ctx context.Context, userID string) ([]*domain.Membership, error) {
	return s.repo.ListMembershipsByUser(ctx, userID)
}
