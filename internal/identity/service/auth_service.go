// Package service composes the credential store, password history ledger,
// session and token lifecycles, tenancy, and MFA into the user-facing
// authentication flows. Every internal failure is mapped onto a closed set of
// sentinel errors before it leaves this package.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/ChrisTorres404/authcakes-sub002/internal/audit"
	credentialdomain "github.com/ChrisTorres404/authcakes-sub002/internal/credential/domain"
	credentialsvc "github.com/ChrisTorres404/authcakes-sub002/internal/credential/service"
	"github.com/ChrisTorres404/authcakes-sub002/internal/mfa"
	mfadomain "github.com/ChrisTorres404/authcakes-sub002/internal/mfa/domain"
	mfarepo "github.com/ChrisTorres404/authcakes-sub002/internal/mfa/repository"
	"github.com/ChrisTorres404/authcakes-sub002/internal/notify"
	historysvc "github.com/ChrisTorres404/authcakes-sub002/internal/passwordhistory/service"
	"github.com/ChrisTorres404/authcakes-sub002/internal/policy/engine"
	"github.com/ChrisTorres404/authcakes-sub002/internal/security"
	sessiondomain "github.com/ChrisTorres404/authcakes-sub002/internal/session/domain"
	sessionsvc "github.com/ChrisTorres404/authcakes-sub002/internal/session/service"
	"github.com/ChrisTorres404/authcakes-sub002/internal/telemetry"
	telemetrydomain "github.com/ChrisTorres404/authcakes-sub002/internal/telemetry/domain"
	telemetryotel "github.com/ChrisTorres404/authcakes-sub002/internal/telemetry/otel"
	tenantsvc "github.com/ChrisTorres404/authcakes-sub002/internal/tenant/service"
	"github.com/ChrisTorres404/authcakes-sub002/internal/token"
	tokensvc "github.com/ChrisTorres404/authcakes-sub002/internal/token/service"

	"github.com/google/uuid"
)

// The closed failure taxonomy of the authentication flows. Callers receive
// these and nothing else; storage-layer detail never crosses this boundary.
var (
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrAccountLocked         = errors.New("account is temporarily locked")
	ErrAccountInactive       = errors.New("account is inactive")
	ErrEmailInUse            = errors.New("email already in use")
	ErrPasswordReused        = errors.New("password was used recently")
	ErrWeakPassword          = errors.New("password does not meet requirements")
	ErrTokenInvalidOrExpired = errors.New("invalid or expired token")
	ErrMFARequired           = errors.New("mfa code required")
	ErrMFAInvalid            = errors.New("invalid mfa code")
	ErrSessionInvalid        = errors.New("session is invalid")
)

const minPasswordLength = 8

// TxRunner runs fn inside one storage transaction. Repositories called from
// fn join the transaction through the context.
type TxRunner interface {
	InTx(ctx context.Context, fn func(context.Context) error) error
}

// NopTx runs fn directly with no transaction. Used in tests and when the
// backing store is not transactional.
type NopTx struct{}

func (NopTx) InTx(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }

// Deps collects the collaborators of the auth service.
type Deps struct {
	Credentials *credentialsvc.Service
	History     *historysvc.Ledger
	Tokens      *tokensvc.Service
	Sessions    *sessionsvc.Manager
	Tenants     *tenantsvc.Service
	Recovery    mfarepo.Repository
	Policy      engine.Evaluator
	Notifier    notify.Notifier
	Audit       audit.AuditLogger
	Events      telemetry.EventEmitter
	Tx          TxRunner

	// TOTPIssuer is the issuer label shown in authenticator apps.
	TOTPIssuer string
	// Env is the deployment environment name, consulted by recovery policy.
	Env string
	// EnforceRecoveryMFA requires an MFA code during account recovery outside
	// production. Production always enforces.
	EnforceRecoveryMFA bool
}

// Service implements the top-level authentication flows.
type Service struct {
	deps Deps
	nowF func() time.Time
}

// NewService returns the auth service. Nil Notifier, Audit, Events, or Tx
// are replaced with no-op implementations.
func NewService(deps Deps) *Service {
	if deps.Notifier == nil {
		deps.Notifier = notify.LogNotifier{}
	}
	if deps.Audit == nil {
		deps.Audit = audit.Noop{}
	}
	if deps.Events == nil {
		deps.Events = telemetryotel.NewEventEmitter(nil)
	}
	if deps.Tx == nil {
		deps.Tx = NopTx{}
	}
	return &Service{deps: deps, nowF: func() time.Time { return time.Now().UTC() }}
}

// SetNow overrides the clock. For tests only.
func (s *Service) SetNow(f func() time.Time) { s.nowF = f }

// Login verifies credentials and MFA, then issues a token pair bound to a
// fresh session. A locked account rejects even the correct password until the
// lockout elapses. Unknown emails and wrong passwords are indistinguishable.
func (s *Service) Login(ctx context.Context, email, password string, device sessiondomain.DeviceInfo, mfaCode string) (*tokensvc.Bundle, error) {
	cred, err := s.deps.Credentials.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		// Burn a hash comparison and record against the identifier anyway so
		// the response shape and timing stay close to the known-account path.
		s.deps.Credentials.DummyCompare(password)
		if err := s.deps.Credentials.RecordFailedAttempt(ctx, email); err != nil {
			return nil, err
		}
		s.deps.Audit.LogEvent(ctx, "", "", "login_failure", "credential", email)
		return nil, ErrInvalidCredentials
	}

	if err := s.deps.Credentials.CheckPassword(cred, password); err != nil {
		switch {
		case errors.Is(err, credentialsvc.ErrAccountInactive):
			return nil, ErrAccountInactive
		case errors.Is(err, credentialsvc.ErrAccountLocked):
			s.deps.Audit.LogEvent(ctx, "", cred.ID, "login_failure", "credential", "locked")
			return nil, ErrAccountLocked
		default:
			if err := s.deps.Credentials.RecordFailedAttempt(ctx, cred.ID); err != nil {
				return nil, err
			}
			s.deps.Audit.LogEvent(ctx, "", cred.ID, "login_failure", "credential", "bad_password")
			return nil, ErrInvalidCredentials
		}
	}

	if cred.MFAEnabled {
		if mfaCode == "" {
			return nil, ErrMFARequired
		}
		ok, err := s.verifySecondFactor(ctx, cred, mfaCode)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.deps.Audit.LogEvent(ctx, "", cred.ID, "login_failure", "mfa", "bad_code")
			return nil, ErrMFAInvalid
		}
	}

	if err := s.deps.Credentials.ResetFailedAttempts(ctx, cred.ID); err != nil {
		return nil, err
	}
	if err := s.deps.Credentials.UpdateLastLogin(ctx, cred.ID); err != nil {
		return nil, err
	}
	bundle, err := s.deps.Tokens.GenerateTokens(ctx, cred.ID, device)
	if err != nil {
		return nil, err
	}
	s.deps.Audit.LogEvent(ctx, "", cred.ID, "login_success", "session", bundle.SessionID)
	s.emit(cred.ID, bundle.SessionID, "user.login")
	return bundle, nil
}

// RegisterInput carries the registration fields. OrganizationName, when
// present, creates a tenant owned by the new user.
type RegisterInput struct {
	Email            string
	Password         string
	Role             string
	OrganizationName string
}

// Register creates the credential, optionally its first tenant, seeds the
// password history, issues an email-verification token, and returns a token
// pair. Credential, tenant, history, and verification token are committed in
// one transaction.
func (s *Service) Register(ctx context.Context, in RegisterInput, device sessiondomain.DeviceInfo) (*tokensvc.Bundle, error) {
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	var (
		cred       *credentialdomain.Credential
		verifToken string
	)
	err := s.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		cred, err = s.deps.Credentials.Create(ctx, credentialsvc.NewCredentialInput{
			Email:    in.Email,
			Password: in.Password,
			Role:     in.Role,
		})
		if err != nil {
			if errors.Is(err, credentialsvc.ErrEmailInUse) {
				return ErrEmailInUse
			}
			return err
		}
		if in.OrganizationName != "" {
			if _, err := s.deps.Tenants.CreateWithOwner(ctx, in.OrganizationName, cred.ID); err != nil {
				return err
			}
		}
		if err := s.deps.History.Add(ctx, cred.ID, cred.PasswordHash); err != nil {
			return err
		}
		verifToken, err = s.deps.Credentials.GenerateVerificationToken(ctx, cred.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.deps.Notifier.SendVerificationEmail(ctx, cred.Email, verifToken)
	bundle, err := s.deps.Tokens.GenerateTokens(ctx, cred.ID, device)
	if err != nil {
		return nil, err
	}
	s.deps.Audit.LogEvent(ctx, "", cred.ID, "register", "credential", cred.Email)
	s.emit(cred.ID, bundle.SessionID, "user.registered")
	return bundle, nil
}

// Refresh rotates the refresh token, keeping the session identity, and bumps
// session activity. The session must still be valid; a session that has gone
// idle or expired fails here with ErrSessionInvalid.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*tokensvc.Bundle, error) {
	claims, err := s.deps.Tokens.ValidateToken(ctx, refreshToken, token.TypeRefresh)
	if err != nil {
		if errors.Is(err, token.ErrInvalidToken) {
			return nil, ErrTokenInvalidOrExpired
		}
		return nil, err
	}
	ok, err := s.deps.Sessions.IsValid(ctx, claims.Subject, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionInvalid
	}
	bundle, err := s.deps.Tokens.Rotate(ctx, refreshToken, claims.Subject, claims.SessionID)
	if err != nil {
		if errors.Is(err, tokensvc.ErrNoTenantMembership) || errors.Is(err, tokensvc.ErrUserNotFound) {
			return nil, ErrTokenInvalidOrExpired
		}
		return nil, err
	}
	if err := s.deps.Sessions.UpdateActivity(ctx, claims.SessionID); err != nil {
		return nil, err
	}
	return bundle, nil
}

// Logout revokes the session and every refresh token bound to it.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.deps.Tokens.RevokeSession(ctx, sessionID, "user", "logout"); err != nil {
		return err
	}
	s.deps.Audit.LogEvent(ctx, "", "", "logout", "session", sessionID)
	return nil
}

// ChangePassword verifies the old password, rejects recently used passwords,
// commits the change, and revokes every session and refresh token the user
// holds. The session making the request is invalidated too; re-login is
// required.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	cred, err := s.deps.Credentials.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if cred == nil {
		return ErrInvalidCredentials
	}
	if err := s.deps.Credentials.CheckPassword(cred, oldPassword); err != nil {
		switch {
		case errors.Is(err, credentialsvc.ErrAccountInactive):
			return ErrAccountInactive
		case errors.Is(err, credentialsvc.ErrAccountLocked):
			return ErrAccountLocked
		default:
			return ErrInvalidCredentials
		}
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	reused, err := s.deps.History.IsReused(ctx, userID, newPassword)
	if err != nil {
		return err
	}
	if reused {
		return ErrPasswordReused
	}

	hash, err := s.deps.Credentials.SetPassword(ctx, userID, newPassword)
	if err != nil {
		return err
	}
	if err := s.deps.History.Add(ctx, userID, hash); err != nil {
		return err
	}
	if err := s.revokeEverything(ctx, userID, "password_changed"); err != nil {
		return err
	}
	s.deps.Notifier.SendPasswordChanged(ctx, cred.Email)
	s.deps.Audit.LogEvent(ctx, "", userID, "password_changed", "credential", "")
	s.emit(userID, "", "user.password_changed")
	return nil
}

// ForgotPassword issues a reset token and OTP for the account and dispatches
// them out-of-band. The response is identical whether or not the email has an
// account; existence is never disclosed.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	cred, err := s.deps.Credentials.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if cred == nil || !cred.Active {
		// Mint and discard the same secrets the real path mints, keeping
		// this branch's cost close; only the row update is skipped.
		_, _ = security.GenerateOpaqueToken(32)
		_, _ = mfa.GenerateOTP()
		s.deps.Audit.LogEvent(ctx, "", "", "password_reset_requested", "credential", email)
		return nil
	}
	resetToken, otp, err := s.deps.Credentials.GeneratePasswordReset(ctx, cred.ID)
	if err != nil {
		return err
	}
	s.deps.Notifier.SendPasswordResetOTP(ctx, cred.Email, resetToken, otp)
	s.deps.Audit.LogEvent(ctx, "", cred.ID, "password_reset_requested", "credential", "")
	return nil
}

// ResetPassword consumes a reset token and its OTP, commits the new password,
// and revokes every session and refresh token. The token is cleared in the
// same conditional update that applies the password, so a concurrent replay
// of the token loses.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword, otp string) (*tokensvc.UserSummary, error) {
	cred, err := s.deps.Credentials.LookupByResetToken(ctx, resetToken)
	if err != nil {
		return nil, mapCredentialErr(err)
	}
	if cred.ResetOTPHash != "" {
		if err := s.deps.Credentials.VerifyResetOTP(cred, otp); err != nil {
			return nil, ErrTokenInvalidOrExpired
		}
	}
	if err := validatePassword(newPassword); err != nil {
		return nil, err
	}
	reused, err := s.deps.History.IsReused(ctx, cred.ID, newPassword)
	if err != nil {
		return nil, err
	}
	if reused {
		return nil, ErrPasswordReused
	}

	hash, err := s.deps.Credentials.ConsumeReset(ctx, resetToken, newPassword)
	if err != nil {
		return nil, mapCredentialErr(err)
	}
	if err := s.deps.History.Add(ctx, cred.ID, hash); err != nil {
		return nil, err
	}
	if err := s.revokeEverything(ctx, cred.ID, "password_reset"); err != nil {
		return nil, err
	}
	s.deps.Notifier.SendPasswordChanged(ctx, cred.Email)
	s.deps.Audit.LogEvent(ctx, "", cred.ID, "password_reset", "credential", "")
	s.emit(cred.ID, "", "user.password_reset")
	return &tokensvc.UserSummary{ID: cred.ID, Email: cred.Email, Role: cred.Role}, nil
}

// RequestAccountRecovery issues a recovery token and dispatches it
// out-of-band. Like ForgotPassword, the response never discloses whether the
// email has an account.
func (s *Service) RequestAccountRecovery(ctx context.Context, email string) error {
	cred, err := s.deps.Credentials.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if cred == nil || !cred.Active {
		_, _ = security.GenerateOpaqueToken(32)
		s.deps.Audit.LogEvent(ctx, "", "", "recovery_requested", "credential", email)
		return nil
	}
	recoveryToken, err := s.deps.Credentials.GenerateRecoveryToken(ctx, cred.ID)
	if err != nil {
		return err
	}
	s.deps.Notifier.SendRecoveryNotification(ctx, cred.Email, recoveryToken)
	s.deps.Audit.LogEvent(ctx, "", cred.ID, "recovery_requested", "credential", "")
	return nil
}

// CompleteAccountRecovery consumes the recovery token and sets a new
// password. When the account has MFA enabled and policy enforces it, a
// missing code rejects with ErrMFARequired and a wrong code with
// ErrMFAInvalid; the two carry different security signal and are kept
// distinct. A recovery code is accepted in place of a TOTP code and is
// consumed on use.
func (s *Service) CompleteAccountRecovery(ctx context.Context, recoveryToken, newPassword, mfaCode string) error {
	cred, err := s.deps.Credentials.LookupByRecoveryToken(ctx, recoveryToken)
	if err != nil {
		return mapCredentialErr(err)
	}

	required, err := s.deps.Policy.RecoveryMFARequired(ctx, cred.MFAEnabled, s.deps.Env, s.deps.EnforceRecoveryMFA)
	if err != nil {
		return err
	}
	if required {
		if mfaCode == "" {
			return ErrMFARequired
		}
		ok, err := s.verifySecondFactor(ctx, cred, mfaCode)
		if err != nil {
			return err
		}
		if !ok {
			s.deps.Audit.LogEvent(ctx, "", cred.ID, "recovery_failure", "mfa", "bad_code")
			return ErrMFAInvalid
		}
	}

	if err := validatePassword(newPassword); err != nil {
		return err
	}
	reused, err := s.deps.History.IsReused(ctx, cred.ID, newPassword)
	if err != nil {
		return err
	}
	if reused {
		return ErrPasswordReused
	}

	hash, err := s.deps.Credentials.ConsumeRecovery(ctx, recoveryToken, newPassword)
	if err != nil {
		return mapCredentialErr(err)
	}
	if err := s.deps.History.Add(ctx, cred.ID, hash); err != nil {
		return err
	}
	if err := s.revokeEverything(ctx, cred.ID, "account_recovered"); err != nil {
		return err
	}
	s.deps.Notifier.SendRecoverySuccess(ctx, cred.Email)
	s.deps.Audit.LogEvent(ctx, "", cred.ID, "account_recovered", "credential", "")
	s.emit(cred.ID, "", "user.account_recovered")
	return nil
}

// VerifyEmail consumes an email-verification token.
func (s *Service) VerifyEmail(ctx context.Context, verificationToken string) error {
	if err := s.deps.Credentials.VerifyEmail(ctx, verificationToken); err != nil {
		return mapCredentialErr(err)
	}
	s.deps.Audit.LogEvent(ctx, "", "", "email_verified", "credential", "")
	return nil
}

// EnrollMFA generates a TOTP secret bound to the account's email and stores
// it in pending state. Enrollment alone does not enable MFA.
func (s *Service) EnrollMFA(ctx context.Context, userID string) (*mfa.Enrollment, error) {
	cred, err := s.deps.Credentials.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrInvalidCredentials
	}
	enrollment, err := mfa.EnrollTOTP(s.deps.TOTPIssuer, cred.Email)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Credentials.SetMFAPending(ctx, userID, credentialdomain.MFATypeTOTP, enrollment.Secret); err != nil {
		return nil, err
	}
	s.deps.Audit.LogEvent(ctx, "", userID, "mfa_enrolled", "credential", "")
	return enrollment, nil
}

// MFAVerification is the result of VerifyMFA. RecoveryCodes is populated only
// on the first successful verification after enrollment; the batch is shown
// once and never retrievable again.
type MFAVerification struct {
	Enabled       bool
	RecoveryCodes []string
}

// VerifyMFA checks a second-factor code. The first success after enrollment
// enables MFA and mints the recovery-code batch.
func (s *Service) VerifyMFA(ctx context.Context, userID, code string) (*MFAVerification, error) {
	cred, err := s.deps.Credentials.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrInvalidCredentials
	}
	if cred.MFASecret == "" {
		return nil, ErrMFAInvalid
	}

	ok, err := s.verifySecondFactor(ctx, cred, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrMFAInvalid
	}

	if cred.MFAEnabled {
		return &MFAVerification{Enabled: true}, nil
	}

	if err := s.deps.Credentials.EnableMFA(ctx, userID); err != nil {
		return nil, err
	}
	codes, err := s.issueRecoveryCodes(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.deps.Audit.LogEvent(ctx, "", userID, "mfa_enabled", "credential", "")
	s.emit(userID, "", "user.mfa_enabled")
	return &MFAVerification{Enabled: true, RecoveryCodes: codes}, nil
}

// ListSessions returns the user's active sessions, most recently used first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	return s.deps.Sessions.ListActive(ctx, userID)
}

// RevokeSession revokes one of the acting user's own sessions and cascades to
// its refresh tokens. A session owned by someone else is rejected.
func (s *Service) RevokeSession(ctx context.Context, sessionID, actorUserID string) error {
	if err := s.deps.Sessions.RevokeOwned(ctx, sessionID, actorUserID); err != nil {
		if errors.Is(err, sessionsvc.ErrSessionNotFound) || errors.Is(err, sessionsvc.ErrSessionNotOwned) {
			return ErrSessionInvalid
		}
		return err
	}
	if err := s.deps.Tokens.RevokeSession(ctx, sessionID, actorUserID, "revoked_by_user"); err != nil {
		return err
	}
	s.deps.Audit.LogEvent(ctx, "", actorUserID, "session_revoked", "session", sessionID)
	return nil
}

// verifySecondFactor checks the code against the account's enrolled factor
// and, for enabled MFA, falls back to consuming a recovery code. Recovery
// codes are single-use; the consume is a conditional update so the same code
// cannot be spent twice.
func (s *Service) verifySecondFactor(ctx context.Context, cred *credentialdomain.Credential, code string) (bool, error) {
	factor, err := mfa.NewFactor(string(cred.MFAType), cred.MFASecret)
	if err != nil {
		return false, err
	}
	if factor.Verify(code, s.nowF()) {
		return true, nil
	}
	if !cred.MFAEnabled || s.deps.Recovery == nil {
		return false, nil
	}
	return s.deps.Recovery.Consume(ctx, cred.ID, security.HashToken(code), s.nowF())
}

// issueRecoveryCodes mints a fresh batch, persists only the hashes, and
// returns the plaintext codes for one-time display.
func (s *Service) issueRecoveryCodes(ctx context.Context, userID string) ([]string, error) {
	codes, err := mfa.GenerateRecoveryCodes()
	if err != nil {
		return nil, err
	}
	rows := make([]*mfadomain.RecoveryCode, len(codes))
	for i, c := range codes {
		rows[i] = &mfadomain.RecoveryCode{
			ID:        uuid.New().String(),
			UserID:    userID,
			CodeHash:  security.HashToken(c),
			CreatedAt: s.nowF(),
		}
	}
	if err := s.deps.Recovery.ReplaceForUser(ctx, userID, rows); err != nil {
		return nil, err
	}
	return codes, nil
}

// revokeEverything is the full lockout: all sessions plus all refresh tokens.
// The two bulk statements are separate and idempotent; a crash between them
// is repaired by re-running either side.
func (s *Service) revokeEverything(ctx context.Context, userID, reason string) error {
	if err := s.deps.Sessions.RevokeAllForUser(ctx, userID, "system:"+reason, ""); err != nil {
		return err
	}
	return s.deps.Tokens.RevokeAllUserTokens(ctx, userID, reason)
}

func (s *Service) emit(userID, sessionID, eventType string) {
	telemetryotel.EmitAsync(s.deps.Events, &telemetrydomain.Event{
		UserID:    userID,
		SessionID: sessionID,
		EventType: eventType,
		Source:    "identity",
		CreatedAt: s.nowF(),
	})
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

func mapCredentialErr(err error) error {
	switch {
	case errors.Is(err, credentialsvc.ErrInvalidToken):
		return ErrTokenInvalidOrExpired
	case errors.Is(err, credentialsvc.ErrAccountLocked):
		return ErrAccountLocked
	case errors.Is(err, credentialsvc.ErrAccountInactive):
		return ErrAccountInactive
	default:
		return err
	}
}
