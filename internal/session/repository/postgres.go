package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ChrisTorres404/authcakes-sub002/internal/db"
	"github.com/ChrisTorres404/authcakes-sub002/internal/session/domain"
)

const sessionColumns = `id, user_id, ip_address, user_agent, device, expires_at,
	last_used_at, active, revoked, revoked_at, revoked_by, created_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.q(ctx).QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListActiveByUser returns the user's non-revoked sessions, most recently used first.
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	rows, err := r.q(ctx).QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND revoked = FALSE
		ORDER BY COALESCE(last_used_at, created_at) DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Create persists the session. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, ip_address, user_agent, device, expires_at,
			last_used_at, active, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.UserID,
		nullString(s.Device.IPAddress), nullString(s.Device.UserAgent), nullString(s.Device.Device),
		s.ExpiresAt, timeToNullTime(s.LastUsedAt), s.Active, s.Revoked, s.CreatedAt)
	return err
}

// UpdateLastUsed bumps the session's last activity timestamp.
func (r *PostgresRepository) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.q(ctx).ExecContext(ctx,
		`UPDATE sessions SET last_used_at = $2 WHERE id = $1`, id, at)
	return err
}

// Revoke marks the session revoked and inactive. Already-revoked sessions keep
// their original revocation metadata, so concurrent revokes are no-op successes.
func (r *PostgresRepository) Revoke(ctx context.Context, id, revokedBy string, at time.Time) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		UPDATE sessions SET revoked = TRUE, active = FALSE, revoked_at = $3, revoked_by = $2
		WHERE id = $1 AND revoked = FALSE`, id, nullString(revokedBy), at)
	return err
}

// RevokeAllByUser bulk-revokes the user's non-revoked sessions, optionally
// excluding one (exceptID empty means no exception).
func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, userID, revokedBy string, at time.Time, exceptID string) error {
	// Two statements rather than one: an empty exceptID cannot be compared
	// against the uuid id column in a single predicate.
	if exceptID == "" {
		_, err := r.q(ctx).ExecContext(ctx, `
			UPDATE sessions SET revoked = TRUE, active = FALSE, revoked_at = $3, revoked_by = $2
			WHERE user_id = $1 AND revoked = FALSE`,
			userID, nullString(revokedBy), at)
		return err
	}
	_, err := r.q(ctx).ExecContext(ctx, `
		UPDATE sessions SET revoked = TRUE, active = FALSE, revoked_at = $3, revoked_by = $2
		WHERE user_id = $1 AND revoked = FALSE AND id <> $4`,
		userID, nullString(revokedBy), at, exceptID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s         domain.Session
		ip        sql.NullString
		userAgent sql.NullString
		device    sql.NullString
		lastUsed  sql.NullTime
		revokedAt sql.NullTime
		revokedBy sql.NullString
	)
	err := row.Scan(&s.ID, &s.UserID, &ip, &userAgent, &device, &s.ExpiresAt,
		&lastUsed, &s.Active, &s.Revoked, &revokedAt, &revokedBy, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.Device = domain.DeviceInfo{IPAddress: ip.String, UserAgent: userAgent.String, Device: device.String}
	s.LastUsedAt = nullTimeToPtr(lastUsed)
	s.RevokedAt = nullTimeToPtr(revokedAt)
	s.RevokedBy = revokedBy.String
	return &s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}

func (r *PostgresRepository) q(ctx context.Context) db.Querier {
	return db.FromContext(ctx, r.db)
}
