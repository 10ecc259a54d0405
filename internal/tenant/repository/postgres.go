package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ChrisTorres404/authcakes-sub002/internal/db"
	"github.com/ChrisTorres404/authcakes-sub002/internal/tenant/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a tenant repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetTenantByID returns the tenant for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetTenantByID(ctx context.Context, id string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := r.q(ctx).QueryRowContext(ctx,
		`SELECT id, name, status, created_at FROM tenants WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// CreateTenant persists the tenant. The tenant must have ID set.
func (r *PostgresRepository) CreateTenant(ctx context.Context, t *domain.Tenant) error {
	_, err := r.q(ctx).ExecContext(ctx,
		`INSERT INTO tenants (id, name, status, created_at) VALUES ($1, $2, $3, $4)`,
		t.ID, t.Name, string(t.Status), t.CreatedAt)
	return err
}

// GetMembershipByUserAndTenant returns the membership for the given user and tenant, or nil.
func (r *PostgresRepository) GetMembershipByUserAndTenant(ctx context.Context, userID, tenantID string) (*domain.Membership, error) {
	var m domain.Membership
	err := r.q(ctx).QueryRowContext(ctx, `
		SELECT id, user_id, tenant_id, role, created_at FROM tenant_memberships
		WHERE user_id = $1 AND tenant_id = $2`, userID, tenantID).
		Scan(&m.ID, &m.UserID, &m.TenantID, &m.Role, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// ListMembershipsByUser returns the user's memberships, earliest created first.
func (r *PostgresRepository) ListMembershipsByUser(ctx context.Context, userID string) ([]*domain.Membership, error) {
	return r.listMemberships(ctx, `
		SELECT id, user_id, tenant_id, role, created_at FROM tenant_memberships
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC`, userID)
}

// ListMembershipsByTenant returns all memberships in the tenant.
func (r *PostgresRepository) ListMembershipsByTenant(ctx context.Context, tenantID string) ([]*domain.Membership, error) {
	return r.listMemberships(ctx, `
		SELECT id, user_id, tenant_id, role, created_at FROM tenant_memberships
		WHERE tenant_id = $1
		ORDER BY created_at ASC, id ASC`, tenantID)
}

func (r *PostgresRepository) listMemberships(ctx context.Context, query string, arg any) ([]*domain.Membership, error) {
	rows, err := r.q(ctx).QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Membership
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(&m.ID, &m.UserID, &m.TenantID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// CreateMembership persists the membership. The membership must have ID set.
func (r *PostgresRepository) CreateMembership(ctx context.Context, m *domain.Membership) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		INSERT INTO tenant_memberships (id, user_id, tenant_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.UserID, m.TenantID, string(m.Role), m.CreatedAt)
	return err
}

// DeleteMembership removes the membership row.
func (r *PostgresRepository) DeleteMembership(ctx context.Context, id string) error {
	_, err := r.q(ctx).ExecContext(ctx, `DELETE FROM tenant_memberships WHERE id = $1`, id)
	return err
}

// CreateInvitation persists the invitation. The invitation must have ID and Token set.
func (r *PostgresRepository) CreateInvitation(ctx context.Context, inv *domain.Invitation) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		INSERT INTO tenant_invitations (id, tenant_id, email, role, token, expires_at, invited_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inv.ID, inv.TenantID, inv.Email, string(inv.Role), inv.Token, inv.ExpiresAt, inv.InvitedBy, inv.CreatedAt)
	return err
}

// GetInvitationByToken returns the invitation holding the token, or nil.
func (r *PostgresRepository) GetInvitationByToken(ctx context.Context, token string) (*domain.Invitation, error) {
	var (
		inv        domain.Invitation
		acceptedAt sql.NullTime
	)
	err := r.q(ctx).QueryRowContext(ctx, `
		SELECT id, tenant_id, email, role, token, expires_at, accepted_at, invited_by, created_at
		FROM tenant_invitations WHERE token = $1`, token).
		Scan(&inv.ID, &inv.TenantID, &inv.Email, &inv.Role, &inv.Token, &inv.ExpiresAt,
			&acceptedAt, &inv.InvitedBy, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if acceptedAt.Valid {
		inv.AcceptedAt = &acceptedAt.Time
	}
	return &inv, nil
}

// AcceptInvitation stamps accepted_at for an unaccepted, unexpired invitation
// in one conditional update. Returns false when the token matched no such row.
func (r *PostgresRepository) AcceptInvitation(ctx context.Context, token string, at time.Time) (bool, error) {
	res, err := r.q(ctx).ExecContext(ctx, `
		UPDATE tenant_invitations SET accepted_at = $2
		WHERE token = $1 AND accepted_at IS NULL AND expires_at > $2`, token, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresRepository) q(ctx context.Context) db.Querier {
	return db.FromContext(ctx, r.db)
}
