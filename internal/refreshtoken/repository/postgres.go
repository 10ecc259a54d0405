package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ChrisTorres404/authcakes-sub002/internal/db"
	"github.com/ChrisTorres404/authcakes-sub002/internal/refreshtoken/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a refresh-token repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the refresh token row. The token must have ID and TokenHash set.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, session_id, token_hash, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.UserID, nullString(t.SessionID), t.TokenHash, t.ExpiresAt, t.Revoked, t.CreatedAt)
	return err
}

// GetByTokenHash returns the row storing the given token hash, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	row := r.q(ctx).QueryRowContext(ctx, `
		SELECT id, user_id, session_id, token_hash, expires_at, revoked, revoked_at,
			revoked_by, revocation_reason, replaced_by, created_at
		FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
	var (
		t          domain.RefreshToken
		sessionID  sql.NullString
		revokedAt  sql.NullTime
		revokedBy  sql.NullString
		reason     sql.NullString
		replacedBy sql.NullString
	)
	err := row.Scan(&t.ID, &t.UserID, &sessionID, &t.TokenHash, &t.ExpiresAt, &t.Revoked,
		&revokedAt, &revokedBy, &reason, &replacedBy, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.SessionID = sessionID.String
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	t.RevokedBy = revokedBy.String
	t.Reason = reason.String
	t.ReplacedBy = replacedBy.String
	return &t, nil
}

// Revoke marks one token revoked with actor and reason. Idempotent.
func (r *PostgresRepository) Revoke(ctx context.Context, id, revokedBy, reason string, at time.Time) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $4, revoked_by = $2, revocation_reason = $3
		WHERE id = $1 AND revoked = FALSE`,
		id, nullString(revokedBy), nullString(reason), at)
	return err
}

// RevokeAllByUser bulk-revokes every non-revoked token owned by the user.
func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, userID, revokedBy, reason string, at time.Time) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $4, revoked_by = $2, revocation_reason = $3
		WHERE user_id = $1 AND revoked = FALSE`,
		userID, nullString(revokedBy), nullString(reason), at)
	return err
}

// RevokeAllBySession bulk-revokes every non-revoked token bound to the session.
func (r *PostgresRepository) RevokeAllBySession(ctx context.Context, sessionID, revokedBy, reason string, at time.Time) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $4, revoked_by = $2, revocation_reason = $3
		WHERE session_id = $1 AND revoked = FALSE`,
		sessionID, nullString(revokedBy), nullString(reason), at)
	return err
}

// SetReplacedBy records the rotation chain pointer from an old token to its successor.
func (r *PostgresRepository) SetReplacedBy(ctx context.Context, id, replacedByID string) error {
	_, err := r.q(ctx).ExecContext(ctx,
		`UPDATE refresh_tokens SET replaced_by = $2 WHERE id = $1`, id, replacedByID)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *PostgresRepository) q(ctx context.Context) db.Querier {
	return db.FromContext(ctx, r.db)
}
