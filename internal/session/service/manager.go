// Package service implements the session lifecycle: creation, validity checks
// against expiry and inactivity, and cascading revocation. Expiry is enforced
// lazily at read time (a stale session is revoked as a side effect of being
// checked), not by a background sweep.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ChrisTorres404/authcakes-sub002/internal/session/domain"
)

var (
	// ErrSessionNotFound is returned when operating on a session id that has no record.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotOwned is returned when the acting user does not own the session.
	ErrSessionNotOwned = errors.New("session does not belong to user")
)

// SessionRepo is the minimal session repository needed by the manager.
type SessionRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	UpdateLastUsed(ctx context.Context, id string, at time.Time) error
	Revoke(ctx context.Context, id, revokedBy string, at time.Time) error
	RevokeAllByUser(ctx context.Context, userID, revokedBy string, at time.Time, exceptID string) error
}

// Manager orchestrates session creation, validity checks, and revocation.
type Manager struct {
	repo       SessionRepo
	lifetime   time.Duration
	inactivity time.Duration
	nowF       func() time.Time
}

// NewManager returns a Manager with the given lifetime and inactivity window.
// A non-positive lifetime falls back to 24h.
func NewManager(repo SessionRepo, lifetime, inactivity time.Duration) *Manager {
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}
	return &Manager{repo: repo, lifetime: lifetime, inactivity: inactivity, nowF: func() time.Time { return time.Now().UTC() }}
}

// SetNow overrides the clock. For tests only.
func (m *Manager) SetNow(f func() time.Time) { m.nowF = f }

// Create opens a new active session for the user with the configured lifetime.
func (m *Manager) Create(ctx context.Context, userID string, device domain.DeviceInfo) (*domain.Session, error) {
	now := m.nowF()
	s := &domain.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Device:    device,
		ExpiresAt: now.Add(m.lifetime),
		Active:    true,
		Revoked:   false,
		CreatedAt: now,
	}
	if err := m.repo.Create(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// IsValid reports whether the session exists, belongs to userID, is not
// revoked, and has neither expired nor been idle past the inactivity window.
// A session found expired or idle is revoked here as a side effect before
// false is returned, so a later check fails the same way.
func (m *Manager) IsValid(ctx context.Context, userID, sessionID string) (bool, error) {
	s, err := m.repo.GetByID(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if s == nil || s.UserID != userID || s.Revoked {
		return false, nil
	}
	now := m.nowF()
	if !now.Before(s.ExpiresAt) || m.idleDeadline(s).Before(now) {
		if err := m.repo.Revoke(ctx, sessionID, "system:expiry", now); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// RemainingTime returns the seconds until the session hits its inactivity
// timeout, floored at 0. Unknown or revoked sessions report 0.
func (m *Manager) RemainingTime(ctx context.Context, sessionID string) (int64, error) {
	s, err := m.repo.GetByID(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if s == nil || s.Revoked {
		return 0, nil
	}
	remaining := m.idleDeadline(s).Sub(m.nowF())
	if remaining < 0 {
		return 0, nil
	}
	return int64(remaining.Seconds()), nil
}

// UpdateActivity bumps the session's last-used timestamp to now.
func (m *Manager) UpdateActivity(ctx context.Context, sessionID string) error {
	return m.repo.UpdateLastUsed(ctx, sessionID, m.nowF())
}

// Revoke marks the session revoked. Revoking an already-revoked session is a
// no-op success so concurrent revokes do not race into errors.
func (m *Manager) Revoke(ctx context.Context, sessionID, revokedBy string) error {
	return m.repo.Revoke(ctx, sessionID, revokedBy, m.nowF())
}

// RevokeOwned revokes the session only if it belongs to actorUserID. A session
// owned by a different user fails with ErrSessionNotOwned rather than
// silently succeeding or no-opping.
func (m *Manager) RevokeOwned(ctx context.Context, sessionID, actorUserID string) error {
	s, err := m.repo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if s == nil {
		return ErrSessionNotFound
	}
	if s.UserID != actorUserID {
		return ErrSessionNotOwned
	}
	return m.repo.Revoke(ctx, sessionID, actorUserID, m.nowF())
}

// RevokeAllForUser bulk-revokes the user's non-revoked sessions. exceptID may
// name one session to keep (empty keeps none).
func (m *Manager) RevokeAllForUser(ctx context.Context, userID, revokedBy, exceptID string) error {
	return m.repo.RevokeAllByUser(ctx, userID, revokedBy, m.nowF(), exceptID)
}

// ListActive returns the user's non-revoked sessions, most recently used first.
func (m *Manager) ListActive(ctx context.Context, userID string) ([]*domain.Session, error) {
	return m.repo.ListActiveByUser(ctx, userID)
}

// idleDeadline is lastUsedAt (or createdAt before any activity) plus the
// inactivity window.
func (m *Manager) idleDeadline(s *domain.Session) time.Time {
	anchor := s.CreatedAt
	if s.LastUsedAt != nil {
		anchor = *s.LastUsedAt
	}
	return anchor.Add(m.inactivity)
}
