package repository

import (
	"context"

	"github.com/ChrisTorres404/authcakes-sub002/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}
