package domain

import (
	"errors"
	"time"
)

// MFAType selects the second-factor mechanism enrolled on a credential.
type MFAType string

const (
	MFATypeTOTP MFAType = "totp"
	MFATypeSMS  MFAType = "sms"
)

// Credential is the per-user authentication record: password hash, lockout
// counters, MFA state, and the outstanding one-time tokens. At most one value
// per token kind is outstanding at a time; issuing a new one overwrites the
// prior value. Credentials are never deleted, only updated.
type Credential struct {
	ID                  string
	Email               string
	PasswordHash        string
	Role                string
	Active              bool
	FailedLoginAttempts int
	LockedUntil         *time.Time // nil when not locked
	MFAEnabled          bool
	MFAType             MFAType
	MFASecret           string // pending until first successful verification
	EmailVerified       bool
	VerificationToken   string
	ResetToken          string
	ResetTokenExpiresAt *time.Time
	ResetOTPHash        string
	ResetOTPExpiresAt   *time.Time
	RecoveryToken       string
	RecoveryExpiresAt   *time.Time
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Locked reports whether the account is locked out at the given instant.
func (c *Credential) Locked(now time.Time) bool {
	return c.LockedUntil != nil && c.LockedUntil.After(now)
}

// Validate validates the credential for persistence. Returns an error
// describing the first validation failure.
func (c *Credential) Validate() error {
	if c.Email == "" {
		return errors.New("email is required")
	}
	if c.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if c.Role == "" {
		c.Role = "user"
	}
	return nil
}
