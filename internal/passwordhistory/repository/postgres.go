package repository

import (
	"context"
	"database/sql"

	"github.com/ChrisTorres404/authcakes-sub002/internal/db"
	"github.com/ChrisTorres404/authcakes-sub002/internal/passwordhistory/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a password-history repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append records a new history entry.
func (r *PostgresRepository) Append(ctx context.Context, e *domain.Entry) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		INSERT INTO password_history (id, user_id, password_hash, created_at)
		VALUES ($1, $2, $3, $4)`,
		e.ID, e.UserID, e.PasswordHash, e.CreatedAt)
	return err
}

// ListRecent returns up to limit entries for the user, newest first.
func (r *PostgresRepository) ListRecent(ctx context.Context, userID string, limit int) ([]*domain.Entry, error) {
	rows, err := r.q(ctx).QueryContext(ctx, `
		SELECT id, user_id, password_hash, created_at FROM password_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Entry
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.PasswordHash, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Prune deletes every entry older than the user's keep newest entries.
func (r *PostgresRepository) Prune(ctx context.Context, userID string, keep int) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		DELETE FROM password_history
		WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM password_history
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		)`, userID, keep)
	return err
}

func (r *PostgresRepository) q(ctx context.Context) db.Querier {
	return db.FromContext(ctx, r.db)
}
