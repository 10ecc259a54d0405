package repository

import (
	"context"
	"time"

	"github.com/ChrisTorres404/authcakes-sub002/internal/session/domain"
)

// Repository defines persistence for sessions. Get methods return (nil, nil)
// for missing rows and errors only for database failures.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	UpdateLastUsed(ctx context.Context, id string, at time.Time) error
	Revoke(ctx context.Context, id, revokedBy string, at time.Time) error
	RevokeAllByUser(ctx context.Context, userID, revokedBy string, at time.Time, exceptID string) error
}
