// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "authcakes-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "authcakes-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m"). Must parse to a positive duration.
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h"). Must parse to a positive duration.
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// SessionLifetime is the session lifetime (e.g. "24h").
	SessionLifetime string `mapstructure:"SESSION_LIFETIME"`
	// SessionInactivityTimeout is the inactivity window after which a session is revoked on read.
	SessionInactivityTimeout string `mapstructure:"SESSION_INACTIVITY_TIMEOUT"`
	// LockoutMaxAttempts is the number of consecutive failed logins before lockout.
	LockoutMaxAttempts int `mapstructure:"LOCKOUT_MAX_ATTEMPTS"`
	// LockoutDuration is how long a locked account stays locked (e.g. "15m").
	LockoutDuration string `mapstructure:"LOCKOUT_DURATION"`
	// PasswordHistoryDepth is how many prior password hashes are checked and retained.
	PasswordHistoryDepth int `mapstructure:"PASSWORD_HISTORY_DEPTH"`
	// BcryptCost is the bcrypt cost factor (4-31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// ResetTokenTTL is the password-reset token lifetime.
	ResetTokenTTL string `mapstructure:"RESET_TOKEN_TTL"`
	// ResetOTPTTL is the lifetime of the numeric OTP that accompanies a password reset.
	ResetOTPTTL string `mapstructure:"RESET_OTP_TTL"`
	// RecoveryTokenTTL is the account-recovery token lifetime.
	RecoveryTokenTTL string `mapstructure:"RECOVERY_TOKEN_TTL"`
	// TOTPIssuer is the issuer label embedded in otpauth:// provisioning URLs.
	TOTPIssuer string `mapstructure:"TOTP_ISSUER"`
	// MFAEnforceRecovery requires an MFA code on account recovery when the account has MFA enabled.
	// Forced on when Env is production; may be relaxed in other environments.
	MFAEnforceRecovery bool `mapstructure:"MFA_ENFORCE_RECOVERY"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// OTLPEndpoint is the OTLP gRPC endpoint for auth event logs (empty disables emission).
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure disables TLS for the OTLP exporter (standard OTEL_EXPORTER_OTLP_INSECURE behavior).
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required
// fields are invalid. Malformed or non-positive TTLs are startup errors, never silently defaulted.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "authcakes-auth")
	v.SetDefault("JWT_AUDIENCE", "authcakes-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("SESSION_LIFETIME", "24h")
	v.SetDefault("SESSION_INACTIVITY_TIMEOUT", "30m")
	v.SetDefault("LOCKOUT_MAX_ATTEMPTS", 5)
	v.SetDefault("LOCKOUT_DURATION", "15m")
	v.SetDefault("PASSWORD_HISTORY_DEPTH", 5)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("RESET_TOKEN_TTL", "1h")
	v.SetDefault("RESET_OTP_TTL", "10m")
	v.SetDefault("RECOVERY_TOKEN_TTL", "1h")
	v.SetDefault("TOTP_ISSUER", "AuthCakes")
	v.SetDefault("MFA_ENFORCE_RECOVERY", true)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	for _, d := range []struct {
		name, value string
	}{
		{"JWT_ACCESS_TTL", cfg.JWTAccessTTL},
		{"JWT_REFRESH_TTL", cfg.JWTRefreshTTL},
		{"SESSION_LIFETIME", cfg.SessionLifetime},
		{"SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout},
		{"LOCKOUT_DURATION", cfg.LockoutDuration},
		{"RESET_TOKEN_TTL", cfg.ResetTokenTTL},
		{"RESET_OTP_TTL", cfg.ResetOTPTTL},
		{"RECOVERY_TOKEN_TTL", cfg.RecoveryTokenTTL},
	} {
		if _, err := parsePositiveDuration(d.value); err != nil {
			return nil, fmt.Errorf("config: %s: %w", d.name, err)
		}
	}

	if cfg.LockoutMaxAttempts <= 0 {
		return nil, errors.New("config: LOCKOUT_MAX_ATTEMPTS must be positive")
	}
	if cfg.PasswordHistoryDepth <= 0 {
		return nil, errors.New("config: PASSWORD_HISTORY_DEPTH must be positive")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.Env == "production" {
		cfg.MFAEnforceRecovery = true
	}

	return &cfg, nil
}

func parsePositiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("duration must be positive")
	}
	return d, nil
}

// AccessTTL returns the parsed access token lifetime. Load guarantees it is valid.
func (c *Config) AccessTTL() time.Duration { return mustDuration(c.JWTAccessTTL) }

// RefreshTTL returns the parsed refresh token lifetime. Load guarantees it is valid.
func (c *Config) RefreshTTL() time.Duration { return mustDuration(c.JWTRefreshTTL) }

// SessionTTL returns the parsed session lifetime. Load guarantees it is valid.
func (c *Config) SessionTTL() time.Duration { return mustDuration(c.SessionLifetime) }

// InactivityTimeout returns the parsed session inactivity window. Load guarantees it is valid.
func (c *Config) InactivityTimeout() time.Duration { return mustDuration(c.SessionInactivityTimeout) }

// Lockout returns the parsed lockout duration. Load guarantees it is valid.
func (c *Config) Lockout() time.Duration { return mustDuration(c.LockoutDuration) }

// ResetTTL returns the parsed password-reset token lifetime. Load guarantees it is valid.
func (c *Config) ResetTTL() time.Duration { return mustDuration(c.ResetTokenTTL) }

// ResetOTP returns the parsed reset OTP lifetime. Load guarantees it is valid.
func (c *Config) ResetOTP() time.Duration { return mustDuration(c.ResetOTPTTL) }

// RecoveryTTL returns the parsed account-recovery token lifetime. Load guarantees it is valid.
func (c *Config) RecoveryTTL() time.Duration { return mustDuration(c.RecoveryTokenTTL) }

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("config: invalid duration %q escaped Load validation", s))
	}
	return d
}
