package repository

import (
	"context"
	"time"

	"github.com/ChrisTorres404/authcakes-sub002/internal/credential/domain"
)

// Repository defines persistence for user credentials. Get methods return
// (nil, nil) for missing rows and errors only for database failures.
//
// The Consume* methods implement one-time-token consumption as a single
// conditional update keyed on the token value. They return false when the
// token no longer matches any row, which is how a concurrent replay of the
// same token loses the race.
type Repository interface {
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
