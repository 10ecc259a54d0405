// Package service implements the password history ledger: every
// password-setting flow checks new passwords against the last N retained
// hashes before committing a change.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ChrisTorres404/authcakes-sub002/internal/passwordhistory/domain"
	"github.com/ChrisTorres404/authcakes-sub002/internal/security"
)

// HistoryRepo is the minimal history repository needed by the ledger.
type HistoryRepo interface {
	Append(ctx context.Context, e *domain.Entry) error
	ListRecent(ctx context.Context, userID string, limit int) ([]*domain.Entry, error)
	Prune(ctx context.Context, userID string, keep int) error
}

// Ledger records prior password hashes and answers reuse checks.
type Ledger struct {
	repo     HistoryRepo
	hasher   *security.Hasher
	lookback int
}

// NewLedger returns a Ledger that retains and checks the last lookback hashes per user.
func NewLedger(repo HistoryRepo, hasher *security.Hasher, lookback int) *Ledger {
	if lookback <= 0 {
		lookback = 5
	}
	return &Ledger{repo: repo, hasher: hasher, lookback: lookback}
}

// Add appends the hash to the user's history and prunes beyond the retained count.
func (l *Ledger) Add(ctx context.Context, userID, passwordHash string) error {
	e := &domain.Entry{
		ID:           uuid.New().String(),
		UserID:       userID,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := l.repo.Append(ctx, e); err != nil {
		return err
	}
	return l.repo.Prune(ctx, userID, l.lookback)
}

// IsReused reports whether plaintext matches any of the last lookback retained
// hashes, newest first. Comparison goes through the password hasher's
// constant-time comparator.
func (l *Ledger) IsReused(ctx context.Context, userID, plaintext string) (bool, error) {
	entries, err := l.repo.ListRecent(ctx, userID, l.lookback)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if l.hasher.Compare(e.PasswordHash, []byte(plaintext)) == nil {
			return true, nil
		}
	}
	return false, nil
}
