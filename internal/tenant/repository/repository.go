package repository

import (
	"context"
	"time"

	"github.com/ChrisTorres404/authcakes-sub002/internal/tenant/domain"
)

// Repository defines persistence for tenants, memberships, and invitations.
// Get methods return (nil, nil) for missing rows and errors only for database
// failures.
type Repository interface {
	GetTenantByID(ctx context.Context, id string) (*domain.Tenant, error)
	CreateTenant(ctx context.Context, t *domain.Tenant) error

	GetMembershipByUserAndTenant(ctx context.Context, userID, tenantID string) (*domain.Membership, error)
	// ListMembershipsByUser returns memberships ordered by creation time then
	// id, so the first element is the deterministic default tenant.
	ListMembershipsByUser(ctx context.Context, userID string) ([]*domain.Membership, error)
	ListMembershipsByTenant(ctx context.Context, tenantID string) ([]*domain.Membership, error)
	CreateMembership(ctx context.Context, m *domain.Membership) error
	DeleteMembership(ctx context.Context, id string) error

	CreateInvitation(ctx context.Context, inv *domain.Invitation) error
	GetInvitationByToken(ctx context.Context, token string) (*domain.Invitation, error)
	// AcceptInvitation stamps accepted_at in a single conditional update and
	// reports whether this call won the consume race.
	AcceptInvitation(ctx context.Context, token string, at time.Time) (bool, error)
}
