package repository

import (
	"context"

	"github.com/ChrisTorres404/authcakes-sub002/internal/passwordhistory/domain"
)

// Repository defines persistence for the password history ledger.
type Repository interface {
	// Append records a new history entry.
	Append(ctx context.Context, e *domain.Entry) error
	// ListRecent returns up to limit entries for the user, newest first.
	ListRecent(ctx context.Context, userID string, limit int) ([]*domain.Entry, error)
	// Prune deletes every entry older than the user's keep newest entries.
	Prune(ctx context.Context, userID string, keep int) error
}
