package mfa

import (
	"errors"
	"time"

	"github.com/ChrisTorres404/authcakes-sub002/internal/security"
)

// ErrUnknownFactorType is returned when a credential carries an MFA type no
// mechanism implements.
var ErrUnknownFactorType = errors.New("unknown mfa factor type")

// Factor verifies a second-factor code for one mechanism. Adding a mechanism
// means adding an implementation, not branching in the orchestrator.
type Factor interface {
	Verify(code string, now time.Time) bool
}

// NewFactor returns the Factor for the credential's MFA type. For TOTP the
// stored value is the base32 secret; for SMS it is the hash of the last
// dispatched code.
func NewFactor(factorType, stored string) (Factor, error) {
	switch factorType {
	case "totp":
		return totpFactor{secret: stored}, nil
	case "sms":
		return smsFactor{codeHash: stored}, nil
	default:
		return nil, ErrUnknownFactorType
	}
}

type totpFactor struct {
	secret string
}

func (f totpFactor) Verify(code string, now time.Time) bool {
	return VerifyTOTP(f.secret, code, now)
}

type smsFactor struct {
	codeHash string
}

func (f smsFactor) Verify(code string, _ time.Time) bool {
	if f.codeHash == "" {
		return false
	}
	return security.TokenHashEqual(code, f.codeHash)
}
