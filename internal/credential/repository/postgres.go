package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ChrisTorres404/authcakes-sub002/internal/credential/domain"
	"github.com/ChrisTorres404/authcakes-sub002/internal/db"
)

const credentialColumns = `id, email, password_hash, role, active, failed_login_attempts,
	locked_until, mfa_enabled, mfa_type, mfa_secret, email_verified, verification_token,
	reset_token, reset_token_expires_at, reset_otp_hash, reset_otp_expires_at,
	recovery_token, recovery_token_expires_at, last_login_at, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a credential repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the credential for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Credential, error) {
	return r.getOne(ctx, `SELECT `+credentialColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail returns the credential for email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Credential, error) {
	return r.getOne(ctx, `SELECT `+credentialColumns+` FROM users WHERE email = $1`, email)
}

// GetByVerificationToken returns the credential holding the given email-verification token, or nil.
func (r *PostgresRepository) GetByVerificationToken(ctx context.Context, token string) (*domain.Credential, error) {
	return r.getOne(ctx, `SELECT `+credentialColumns+` FROM users WHERE verification_token = $1`, token)
}

// GetByResetToken returns the credential holding the given password-reset token, or nil.
func (r *PostgresRepository) GetByResetToken(ctx context.Context, token string) (*domain.Credential, error) {
	return r.getOne(ctx, `SELECT `+credentialColumns+` FROM users WHERE reset_token = $1`, token)
}

// GetByRecoveryToken returns the credential holding the given account-recovery token, or nil.
func (r *PostgresRepository) GetByRecoveryToken(ctx context.Context, token string) (*domain.Credential, error) {
	return r.getOne(ctx, `SELECT `+credentialColumns+` FROM users WHERE recovery_token = $1`, token)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*domain.Credential, error) {
	row := r.q(ctx).QueryRowContext(ctx, query, arg)
	c, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// Create persists the credential. The credential must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Credential) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, role, active, failed_login_attempts,
			mfa_enabled, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.Email, c.PasswordHash, c.Role, c.Active, c.FailedLoginAttempts,
		c.MFAEnabled, c.EmailVerified, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

// UpdatePassword sets a new password hash for the user.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	_, err := r.q(ctx).ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		id, passwordHash)
	return err
}

// IncrementFailedAttempts atomically bumps the failure counter and returns the new value.
// Returns 0 with no error when the user does not exist, so callers cannot
// distinguish a missing account from a fresh one.
func (r *PostgresRepository) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.q(ctx).QueryRowContext(ctx, `
		UPDATE users SET failed_login_attempts = failed_login_attempts + 1, updated_at = now()
		WHERE id = $1
		RETURNING failed_login_attempts`, id).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return attempts, err
}

// SetLockout locks the account until the given time.
func (r *PostgresRepository) SetLockout(ctx context.Context, id string, until time.Time) error {
	_, err := r.q(ctx).ExecContext(ctx,
		`UPDATE users SET locked_until = $2, updated_at = now() WHERE id = $1`,
		id, until)
	return err
}

// ResetFailedAttempts zeroes the failure counter and clears any lockout.
func (r *PostgresRepository) ResetFailedAttempts(ctx context.Context, id string) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		UPDATE users SET failed_login_attempts = 0, locked_until = NULL, updated_at = now()
		WHERE id = $1`, id)
	return err
}

// UpdateLastLogin records the most recent successful login time.
func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.q(ctx).ExecContext(ctx,
		`UPDATE users SET last_login_at = $2, updated_at = now() WHERE id = $1`,
		id, at)
	return err
}

// SetVerificationToken replaces the outstanding email-verification token.
func (r *PostgresRepository) SetVerificationToken(ctx context.Context, id, token string) error {
	_, err := r.q(ctx).ExecContext(ctx,
		`UPDATE users SET verification_token = $2, updated_at = now() WHERE id = $1`,
		id, token)
	return err
}

// SetResetToken replaces the outstanding password-reset token and its OTP.
func (r *PostgresRepository) SetResetToken(ctx context.Context, id, token string, tokenExpiresAt time.Time, otpHash string, otpExpiresAt time.Time) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		UPDATE users SET reset_token = $2, reset_token_expires_at = $3,
			reset_otp_hash = $4, reset_otp_expires_at = $5, updated_at = now()
		WHERE id = $1`,
		id, token, tokenExpiresAt, otpHash, otpExpiresAt)
	return err
}

// SetRecoveryToken replaces the outstanding account-recovery token.
func (r *PostgresRepository) SetRecoveryToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		UPDATE users SET recovery_token = $2, recovery_token_expires_at = $3, updated_at = now()
		WHERE id = $1`,
		id, token, expiresAt)
	return err
}

// ConsumeVerificationToken marks the email verified and clears the token in a
// single conditional update. Returns false when the token matched no row.
func (r *PostgresRepository) ConsumeVerificationToken(ctx context.Context, token string) (bool, error) {
	res, err := r.q(ctx).ExecContext(ctx, `
		UPDATE users SET email_verified = TRUE, verification_token = NULL, updated_at = now()
		WHERE verification_token = $1 AND verification_token IS NOT NULL`, token)
	if err != nil {
		return false, err
	}
	return oneRowAffected(res)
}

// ConsumeResetToken applies the new password hash and clears the reset token,
// its expiry, and the OTP in one conditional update. Two concurrent requests
// presenting the same token cannot both observe an affected row.
func (r *PostgresRepository) ConsumeResetToken(ctx context.Context, token, newPasswordHash string) (bool, error) {
	res, err := r.q(ctx).ExecContext(ctx, `
		UPDATE users SET password_hash = $2, reset_token = NULL, reset_token_expires_at = NULL,
			reset_otp_hash = NULL, reset_otp_expires_at = NULL, updated_at = now()
		WHERE reset_token = $1 AND reset_token IS NOT NULL`, token, newPasswordHash)
	if err != nil {
		return false, err
	}
	return oneRowAffected(res)
}

// ConsumeRecoveryToken applies the new password hash and clears the recovery
// token and its expiry in one conditional update.
func (r *PostgresRepository) ConsumeRecoveryToken(ctx context.Context, token, newPasswordHash string) (bool, error) {
	res, err := r.q(ctx).ExecContext(ctx, `
		UPDATE users SET password_hash = $2, recovery_token = NULL, recovery_token_expires_at = NULL,
			updated_at = now()
		WHERE recovery_token = $1 AND recovery_token IS NOT NULL`, token, newPasswordHash)
	if err != nil {
		return false, err
	}
	return oneRowAffected(res)
}

// SetMFAPending stores an enrolled-but-not-yet-enabled MFA secret.
func (r *PostgresRepository) SetMFAPending(ctx context.Context, id string, mfaType domain.MFAType, secret string) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		UPDATE users SET mfa_enabled = FALSE, mfa_type = $2, mfa_secret = $3, updated_at = now()
		WHERE id = $1`,
		id, string(mfaType), secret)
	return err
}

// EnableMFA flips MFA on after the first successful verification.
func (r *PostgresRepository) EnableMFA(ctx context.Context, id string) error {
	_, err := r.q(ctx).ExecContext(ctx,
		`UPDATE users SET mfa_enabled = TRUE, updated_at = now() WHERE id = $1`, id)
	return err
}

// DisableMFA clears MFA state entirely.
func (r *PostgresRepository) DisableMFA(ctx context.Context, id string) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		UPDATE users SET mfa_enabled = FALSE, mfa_type = NULL, mfa_secret = NULL, updated_at = now()
		WHERE id = $1`, id)
	return err
}

func oneRowAffected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*domain.Credential, error) {
	var (
		c            domain.Credential
		mfaType      sql.NullString
		mfaSecret    sql.NullString
		verifToken   sql.NullString
		resetToken   sql.NullString
		resetExpiry  sql.NullTime
		resetOTP     sql.NullString
		otpExpiry    sql.NullTime
		recToken     sql.NullString
		recExpiry    sql.NullTime
		lockedUntil  sql.NullTime
		lastLogin    sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.Email, &c.PasswordHash, &c.Role, &c.Active, &c.FailedLoginAttempts,
		&lockedUntil, &c.MFAEnabled, &mfaType, &mfaSecret, &c.EmailVerified, &verifToken,
		&resetToken, &resetExpiry, &resetOTP, &otpExpiry,
		&recToken, &recExpiry, &lastLogin, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.MFAType = domain.MFAType(mfaType.String)
	c.MFASecret = mfaSecret.String
	c.VerificationToken = verifToken.String
	c.ResetToken = resetToken.String
	c.ResetTokenExpiresAt = nullTimeToPtr(resetExpiry)
	c.ResetOTPHash = resetOTP.String
	c.ResetOTPExpiresAt = nullTimeToPtr(otpExpiry)
	c.RecoveryToken = recToken.String
	c.RecoveryExpiresAt = nullTimeToPtr(recExpiry)
	c.LockedUntil = nullTimeToPtr(lockedUntil)
	c.LastLoginAt = nullTimeToPtr(lastLogin)
	return &c, nil
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
