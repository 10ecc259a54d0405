// Package mfa implements the second-factor mechanisms: TOTP enrollment and
// verification, the numeric OTPs used by reset flows, and single-use recovery
// codes.
package mfa

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod = 30
	totpDigits = otp.DigitsSix
	// totpSkew allows one period of clock drift in either direction.
	totpSkew = 1
)

// Enrollment is the output of TOTP enrollment: the base32 secret to persist
// in pending state and the otpauth:// URL for the user's authenticator app.
type Enrollment struct {
	Secret     string
	OtpauthURL string
}

// EnrollTOTP generates a TOTP secret bound to the account identity string.
// Enrollment alone does not enable MFA; the first successful verification does.
func EnrollTOTP(issuer, account string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      totpPeriod,
		Digits:      totpDigits,
	})
	if err != nil {
		return nil, err
	}
	return &Enrollment{Secret: key.Secret(), OtpauthURL: key.URL()}, nil
}

// VerifyTOTP checks code against the base32 secret at the given instant,
// allowing a one-step skew window.
func VerifyTOTP(secret, code string, now time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, now, totp.ValidateOpts{
		Period: totpPeriod,
		Skew:   totpSkew,
		Digits: totpDigits,
	})
	return err == nil && ok
}
