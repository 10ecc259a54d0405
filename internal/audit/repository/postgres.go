package repository

import (
	"context"
	"database/sql"

	"github.com/ChrisTorres404/authcakes-sub002/internal/audit/domain"
	"github.com/ChrisTorres404/authcakes-sub002/internal/db"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists one audit log entry.
func (r *PostgresRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		INSERT INTO audit_logs (id, tenant_id, user_id, action, resource, ip, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.TenantID, entry.UserID, entry.Action, entry.Resource,
		entry.IP, entry.Metadata, entry.CreatedAt)
	return err
}

func (r *PostgresRepository) q(ctx context.Context) db.Querier {
	return db.FromContext(ctx, r.db)
}
