package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/ChrisTorres404/authcakes-sub002/internal/db"
	"github.com/ChrisTorres404/authcakes-sub002/internal/mfa/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a recovery-code repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ReplaceForUser deletes the user's existing codes and stores the new batch
// in one transaction, so a crash cannot leave a mixed batch.
func (r *PostgresRepository) ReplaceForUser(ctx context.Context, userID string, codes []*domain.RecoveryCode) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM mfa_recovery_codes WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for _, c := range codes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO mfa_recovery_codes (id, user_id, code_hash, used, created_at)
			VALUES ($1, $2, $3, FALSE, $4)`,
			c.ID, c.UserID, c.CodeHash, c.CreatedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Consume marks the matching unused code as used. The WHERE used = FALSE
// guard makes each code single-use even under concurrent presentation.
func (r *PostgresRepository) Consume(ctx context.Context, userID, codeHash string, at time.Time) (bool, error) {
	res, err := r.q(ctx).ExecContext(ctx, `
		UPDATE mfa_recovery_codes SET used = TRUE, used_at = $3
		WHERE user_id = $1 AND code_hash = $2 AND used = FALSE`,
		userID, codeHash, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresRepository) q(ctx context.Context) db.Querier {
	return db.FromContext(ctx, r.db)
}
