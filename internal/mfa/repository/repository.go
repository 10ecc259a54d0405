package repository

import (
	"context"
	"time"

	"github.com/ChrisTorres404/authcakes-sub002/internal/mfa/domain"
)

// Repository defines persistence for MFA recovery codes.
type Repository interface {
	// ReplaceForUser deletes the user's existing codes and stores the new batch.
	ReplaceForUser(ctx context.Context, userID string, codes []*domain.RecoveryCode) error
	// Consume marks the matching unused code as used in a single conditional
	// update and reports whether this call won the consume race.
	Consume(ctx context.Context, userID, codeHash string, at time.Time) (bool, error)
}
