package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ChrisTorres404/authcakes-sub002/internal/credential/domain"
	"github.com/ChrisTorres404/authcakes-sub002/internal/mfa"
	"github.com/ChrisTorres404/authcakes-sub002/internal/security"
)

var (
	// ErrEmailInUse is returned when creating a credential with an email that
	// already has an account.
	ErrEmailInUse = errors.New("email already in use")
	// ErrInvalidToken is returned for any one-time-token failure. Absent,
	// expired, and already-consumed tokens are deliberately indistinguishable.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrAccountLocked is returned when an operation targets a locked account.
	ErrAccountLocked = errors.New("account is locked")
	// ErrAccountInactive is returned when an operation targets a deactivated
	// account.
	ErrAccountInactive = errors.New("account is inactive")
	// ErrInvalidOTP is returned when a reset OTP does not match or has expired.
	ErrInvalidOTP = errors.New("invalid or expired verification code")
)

const opaqueTokenBytes = 32

// Service owns credential persistence rules: password hashing, the
// failed-attempt lockout counter, and one-time token issuance and
// consumption. Flow composition lives in the identity service.
type Service struct {
	repo   Repo
	hasher *security.Hasher

	maxAttempts int
	lockout     time.Duration
	resetTTL    time.Duration
	otpTTL      time.Duration
	recoveryTTL time.Duration

	// dummyHash is compared against on unknown-identifier paths so their
	// cost tracks a real password check.
	dummyHash string

	now func() time.Time
}

// Repo is the subset of the credential repository the service depends on.
type Repo interface {
	GetByID(ctx context.Context, id string) (*domain.Credential, error)
	GetByEmail(ctx context.Context, email string) (*domain.Credential, error)
	GetByVerificationToken(ctx context.Context, token string) (*domain.Credential, error)
	GetByResetToken(ctx context.Context, token string) (*domain.Credential, error)
	GetByRecoveryToken(ctx context.Context, token string) (*domain.Credential, error)

	Create(ctx context.Context, c *domain.Credential) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	IncrementFailedAttempts(ctx context.Context, id string) (int, error)
	SetLockout(ctx context.Context, id string, until time.Time) error
	ResetFailedAttempts(ctx context.Context, id string) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	SetVerificationToken(ctx context.Context, id, token string) error
	SetResetToken(ctx context.Context, id, token string, tokenExpiresAt time.Time, otpHash string, otpExpiresAt time.Time) error
	SetRecoveryToken(ctx context.Context, id, token string, expiresAt time.Time) error

	ConsumeVerificationToken(ctx context.Context, token string) (bool, error)
	ConsumeResetToken(ctx context.Context, token, newPasswordHash string) (bool, error)
	ConsumeRecoveryToken(ctx context.Context, token, newPasswordHash string) (bool, error)

	SetMFAPending(ctx context.Context, id string, mfaType domain.MFAType, secret string) error
	EnableMFA(ctx context.Context, id string) error
	DisableMFA(ctx context.Context, id string) error
}

// Config carries the lockout and token-lifetime knobs for the service.
type Config struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	ResetTokenTTL     time.Duration
	ResetOTPTTL       time.Duration
	RecoveryTokenTTL  time.Duration
}

// NewService builds a credential service.
func NewService(repo Repo, hasher *security.Hasher, cfg Config) *Service {
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = 5
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 15 * time.Minute
	}
	s := &Service{
		repo:        repo,
		hasher:      hasher,
		maxAttempts: cfg.MaxFailedAttempts,
		lockout:     cfg.LockoutDuration,
		resetTTL:    cfg.ResetTokenTTL,
		otpTTL:      cfg.ResetOTPTTL,
		recoveryTTL: cfg.RecoveryTokenTTL,
		now:         time.Now,
	}
	if h, err := hasher.Hash([]byte("nobody")); err == nil {
		s.dummyHash = h
	}
	return s
}

// DummyCompare burns a password comparison against a throwaway hash at the
// configured cost. Unknown-identifier paths call this so their timing stays
// close to a real check; the result is discarded.
func (s *Service) DummyCompare(password string) {
	_ = s.hasher.Compare(s.dummyHash, []byte(password))
}

// SetNow overrides the clock. Test hook.
func (s *Service) SetNow(now func() time.Time) { s.now = now }

// FindByID returns the credential or (nil, nil) when absent.
func (s *Service) FindByID(ctx context.Context, id string) (*domain.Credential, error) {
	return s.repo.GetByID(ctx, id)
}

// FindByEmail returns the credential or (nil, nil) when absent.
func (s *Service) FindByEmail(ctx context.Context, email string) (*domain.Credential, error) {
	return s.repo.GetByEmail(ctx, email)
}

// NewCredentialInput carries the fields needed to create an account.
type NewCredentialInput struct {
	Email    string
	Password string
	Role     string
}

// Create hashes the password and persists a new credential. Duplicate emails
// are rejected with ErrEmailInUse.
func (s *Service) Create(ctx context.Context, in NewCredentialInput) (*domain.Credential, error) {
	existing, err := s.repo.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailInUse
	}

	hash, err := s.hasher.Hash([]byte(in.Password))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	cred := &domain.Credential{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := cred.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, cred); err != nil {
		// A concurrent registration can slip past the lookup above and land
		// on the unique email index instead.
		if isUniqueViolation(err) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("create credential: %w", err)
	}
	return cred, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CheckPassword compares the supplied password against the stored hash.
// Returns ErrAccountLocked or ErrAccountInactive before touching the hash so
// a locked account rejects even the correct password.
func (s *Service) CheckPassword(cred *domain.Credential, password string) error {
	if !cred.Active {
		return ErrAccountInactive
	}
	if cred.Locked(s.now()) {
		return ErrAccountLocked
	}
	return s.hasher.Compare(cred.PasswordHash, []byte(password))
}

// SetPassword hashes and stores a new password, returning the hash so callers
// can append it to the password history.
func (s *Service) SetPassword(ctx context.Context, id, newPassword string) (string, error) {
	hash, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, id, hash); err != nil {
		return "", fmt.Errorf("update password: %w", err)
	}
	return hash, nil
}

// RecordFailedAttempt increments the failure counter for the identified
// account and locks it once the counter reaches the configured maximum. The
// identifier may be a user id or an email; an unknown identifier is a silent
// no-op so callers cannot learn whether an account exists.
func (s *Service) RecordFailedAttempt(ctx context.Context, idOrEmail string) error {
	// Only a parseable uuid can hit the id column; anything else (an email,
	// or garbage) goes straight to the email lookup.
	var cred *domain.Credential
	if _, err := uuid.Parse(idOrEmail); err == nil {
		cred, err = s.repo.GetByID(ctx, idOrEmail)
		if err != nil {
			return fmt.Errorf("lookup by id: %w", err)
		}
	}
	if cred == nil {
		var err error
		cred, err = s.repo.GetByEmail(ctx, idOrEmail)
		if err != nil {
			return fmt.Errorf("lookup by email: %w", err)
		}
	}
	if cred == nil {
		return nil
	}

	attempts, err := s.repo.IncrementFailedAttempts(ctx, cred.ID)
	if err != nil {
		return fmt.Errorf("increment failed attempts: %w", err)
	}
	if attempts >= s.maxAttempts {
		until := s.now().Add(s.lockout)
		if err := s.repo.SetLockout(ctx, cred.ID, until); err != nil {
			return fmt.Errorf("set lockout: %w", err)
		}
	}
	return nil
}

// ResetFailedAttempts clears the failure counter and any lockout.
func (s *Service) ResetFailedAttempts(ctx context.Context, id string) error {
	return s.repo.ResetFailedAttempts(ctx, id)
}

// UpdateLastLogin stamps the last successful login time.
func (s *Service) UpdateLastLogin(ctx context.Context, id string) error {
	return s.repo.UpdateLastLogin(ctx, id, s.now())
}

// GenerateVerificationToken issues a fresh email-verification token.
func (s *Service) GenerateVerificationToken(ctx context.Context, id string) (string, error) {
	token, err := security.GenerateOpaqueToken(opaqueTokenBytes)
	if err != nil {
		return "", err
	}
	if err := s.repo.SetVerificationToken(ctx, id, token); err != nil {
		return "", fmt.Errorf("store verification token: %w", err)
	}
	return token, nil
}

// GeneratePasswordReset issues a reset token plus a short numeric OTP with
// its own, shorter expiry. The OTP is stored hashed; the plaintext is
// returned once for out-of-band delivery.
func (s *Service) GeneratePasswordReset(ctx context.Context, id string) (token, otp string, err error) {
	token, err = security.GenerateOpaqueToken(opaqueTokenBytes)
	if err != nil {
		return "", "", err
	}
	otp, err = mfa.GenerateOTP()
	if err != nil {
		return "", "", err
	}
	now := s.now()
	err = s.repo.SetResetToken(ctx, id, token, now.Add(s.resetTTL), security.HashToken(otp), now.Add(s.otpTTL))
	if err != nil {
		return "", "", fmt.Errorf("store reset token: %w", err)
	}
	return token, otp, nil
}

// GenerateRecoveryToken issues a fresh account-recovery token.
func (s *Service) GenerateRecoveryToken(ctx context.Context, id string) (string, error) {
	token, err := security.GenerateOpaqueToken(opaqueTokenBytes)
	if err != nil {
		return "", err
	}
	if err := s.repo.SetRecoveryToken(ctx, id, token, s.now().Add(s.recoveryTTL)); err != nil {
		return "", fmt.Errorf("store recovery token: %w", err)
	}
	return token, nil
}

// VerifyEmail consumes an email-verification token. The consume is a single
// conditional update, so a concurrent replay of the same token fails.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	ok, err := s.repo.ConsumeVerificationToken(ctx, token)
	if err != nil {
		return fmt.Errorf("consume verification token: %w", err)
	}
	if !ok {
		return ErrInvalidToken
	}
	return nil
}

// LookupByResetToken validates a reset token's existence, expiry, and the
// account state it belongs to. It does not consume the token; callers run
// their remaining checks and then call ConsumeReset.
func (s *Service) LookupByResetToken(ctx context.Context, token string) (*domain.Credential, error) {
	return s.lookupToken(ctx, token, s.repo.GetByResetToken, func(c *domain.Credential) *time.Time {
		return c.ResetTokenExpiresAt
	})
}

// VerifyResetOTP checks the caller-supplied OTP against the stored hash and
// its expiry.
func (s *Service) VerifyResetOTP(cred *domain.Credential, otp string) error {
	if cred.ResetOTPHash == "" || cred.ResetOTPExpiresAt == nil {
		return ErrInvalidOTP
	}
	if s.now().After(*cred.ResetOTPExpiresAt) {
		return ErrInvalidOTP
	}
	if !security.TokenHashEqual(otp, cred.ResetOTPHash) {
		return ErrInvalidOTP
	}
	return nil
}

// ConsumeReset atomically sets the new password and clears the reset token.
// Returns the new hash for history bookkeeping.
func (s *Service) ConsumeReset(ctx context.Context, token, newPassword string) (string, error) {
	hash, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	ok, err := s.repo.ConsumeResetToken(ctx, token, hash)
	if err != nil {
		return "", fmt.Errorf("consume reset token: %w", err)
	}
	if !ok {
		return "", ErrInvalidToken
	}
	return hash, nil
}

// LookupByRecoveryToken validates a recovery token the same way
// LookupByResetToken validates a reset token.
func (s *Service) LookupByRecoveryToken(ctx context.Context, token string) (*domain.Credential, error) {
	return s.lookupToken(ctx, token, s.repo.GetByRecoveryToken, func(c *domain.Credential) *time.Time {
		return c.RecoveryExpiresAt
	})
}

// ConsumeRecovery atomically sets the new password and clears the recovery
// token.
func (s *Service) ConsumeRecovery(ctx context.Context, token, newPassword string) (string, error) {
	hash, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	ok, err := s.repo.ConsumeRecoveryToken(ctx, token, hash)
	if err != nil {
		return "", fmt.Errorf("consume recovery token: %w", err)
	}
	if !ok {
		return "", ErrInvalidToken
	}
	return hash, nil
}

// SetMFAPending stores a not-yet-enabled MFA secret for the account.
func (s *Service) SetMFAPending(ctx context.Context, id string, mfaType domain.MFAType, secret string) error {
	return s.repo.SetMFAPending(ctx, id, mfaType, secret)
}

// EnableMFA flips MFA to enabled after the first successful verification.
func (s *Service) EnableMFA(ctx context.Context, id string) error {
	return s.repo.EnableMFA(ctx, id)
}

// DisableMFA clears MFA state for the account.
func (s *Service) DisableMFA(ctx context.Context, id string) error {
	return s.repo.DisableMFA(ctx, id)
}

func (s *Service) lookupToken(
	ctx context.Context,
	token string,
	get func(context.Context, string) (*domain.Credential, error),
	expiry func(*domain.Credential) *time.Time,
) (*domain.Credential, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	cred, err := get(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	if cred == nil {
		return nil, ErrInvalidToken
	}
	exp := expiry(cred)
	if exp == nil || s.now().After(*exp) {
		return nil, ErrInvalidToken
	}
	if !cred.Active {
		return nil, ErrAccountInactive
	}
	if cred.Locked(s.now()) {
		return nil, ErrAccountLocked
	}
	return cred, nil
}
