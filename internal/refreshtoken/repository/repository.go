package repository

import (
	"context"
	"time"

	"github.com/ChrisTorres404/authcakes-sub002/internal/refreshtoken/domain"
)

// Repository defines persistence for refresh tokens. GetByTokenHash returns
// (nil, nil) for missing rows and errors only for database failures. Revoke
// operations are idempotent: rows already revoked are left untouched.
type Repository interface {
	Create(ctx context.Context, t *domain.RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	Revoke(ctx context.Context, id, revokedBy, reason string, at time.Time) error
	RevokeAllByUser(ctx context.Context, userID, revokedBy, reason string, at time.Time) error
	RevokeAllBySession(ctx context.Context, sessionID, revokedBy, reason string, at time.Time) error
	SetReplacedBy(ctx context.Context, id, replacedByID string) error
}
