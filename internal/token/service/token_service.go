// Package service implements the token lifecycle: issuance of access/refresh
// pairs bound to a fresh session, refresh-token rotation, and the revocation
// cascades that keep tokens and sessions consistent.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	credentialdomain "github.com/ChrisTorres404/authcakes-sub002/internal/credential/domain"
	refreshdomain "github.com/ChrisTorres404/authcakes-sub002/internal/refreshtoken/domain"
	"github.com/ChrisTorres404/authcakes-sub002/internal/security"
	sessiondomain "github.com/ChrisTorres404/authcakes-sub002/internal/session/domain"
	tenantdomain "github.com/ChrisTorres404/authcakes-sub002/internal/tenant/domain"
	"github.com/ChrisTorres404/authcakes-sub002/internal/token"
)

// Sentinel errors for the token service; the orchestrator maps them outward.
var (
	ErrUserNotFound = errors.New("user not found")
	// ErrNoTenantMembership is returned when a user has no tenant memberships
	// at rotation time. Absent membership data during rotation is treated as a
	// security-relevant anomaly, not a condition to proceed through.
	ErrNoTenantMembership = errors.New("user has no tenant memberships")
)

// UserSummary is the caller-facing slice of the credential embedded in a bundle.
type UserSummary struct {
	ID    string
	Email string
	Role  string
}

// Bundle is the result of token issuance: the signed pair, the session they
// anchor to, and a user summary.
type Bundle struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
	User         UserSummary
}

// CredentialRepo is the minimal credential repository needed by the service.
type CredentialRepo interface {
	GetByID(ctx context.Context, id string) (*credentialdomain.Credential, error)
}

// MembershipRepo is the minimal tenant repository needed by the service.
type MembershipRepo interface {
	ListMembershipsByUser(ctx context.Context, userID string) ([]*tenantdomain.Membership, error)
}

// RefreshTokenRepo is the minimal refresh-token repository needed by the service.
type RefreshTokenRepo interface {
	Create(ctx context.Context, t *refreshdomain.RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*refreshdomain.RefreshToken, error)
	Revoke(ctx context.Context, id, revokedBy, reason string, at time.Time) error
	RevokeAllByUser(ctx context.Context, userID, revokedBy, reason string, at time.Time) error
	RevokeAllBySession(ctx context.Context, sessionID, revokedBy, reason string, at time.Time) error
	SetReplacedBy(ctx context.Context, id, replacedByID string) error
}

// SessionManager is the session lifecycle surface needed by the service.
type SessionManager interface {
	Create(ctx context.Context, userID string, device sessiondomain.DeviceInfo) (*sessiondomain.Session, error)
	Revoke(ctx context.Context, sessionID, revokedBy string) error
}

// Service orchestrates token pair issuance, rotation, and revocation cascades.
type Service struct {
	issuer      *token.Issuer
	credentials CredentialRepo
	memberships MembershipRepo
	refreshRepo RefreshTokenRepo
	sessions    SessionManager
	nowF        func() time.Time
}

// NewService returns a token Service with the given dependencies.
func NewService(issuer *token.Issuer, credentials CredentialRepo, memberships MembershipRepo, refreshRepo RefreshTokenRepo, sessions SessionManager) *Service {
	return &Service{
		issuer:      issuer,
		credentials: credentials,
		memberships: memberships,
		refreshRepo: refreshRepo,
		sessions:    sessions,
		nowF:        func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the clock. For tests only.
func (s *Service) SetNow(f func() time.Time) { s.nowF = f }

// GenerateTokens loads the user, resolves tenant context, opens a fresh
// session, and returns a signed access/refresh pair with the refresh token
// persisted against user and session. The default tenant is the user's
// earliest-created membership.
func (s *Service) GenerateTokens(ctx context.Context, userID string, device sessiondomain.DeviceInfo) (*Bundle, error) {
	cred, err := s.credentials.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrUserNotFound
	}
	tenantID, tenantAccess, err := s.tenantContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.Create(ctx, userID, device)
	if err != nil {
		return nil, err
	}
	return s.issuePair(ctx, cred, tenantID, tenantAccess, sess.ID)
}

// Rotate revokes oldToken and mints a new pair carrying the same session id.
// Rotation preserves session identity; only the refresh token value changes.
// A user without tenant memberships is rejected rather than rotated with
// stale tenant context.
func (s *Service) Rotate(ctx context.Context, oldToken, userID, sessionID string) (*Bundle, error) {
	cred, err := s.credentials.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrUserNotFound
	}
	memberships, err := s.memberships.ListMembershipsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return nil, ErrNoTenantMembership
	}
	tenantID := memberships[0].TenantID
	tenantAccess := make([]string, len(memberships))
	for i, m := range memberships {
		tenantAccess[i] = m.TenantID
	}

	old, err := s.refreshRepo.GetByTokenHash(ctx, security.HashToken(oldToken))
	if err != nil {
		return nil, err
	}
	if err := s.revokeRow(ctx, old, userID, "rotated"); err != nil {
		return nil, err
	}
	bundle, err := s.issuePair(ctx, cred, tenantID, tenantAccess, sessionID)
	if err != nil {
		return nil, err
	}
	if old != nil {
		newRow, err := s.refreshRepo.GetByTokenHash(ctx, security.HashToken(bundle.RefreshToken))
		if err != nil {
			return nil, err
		}
		if newRow != nil {
			if err := s.refreshRepo.SetReplacedBy(ctx, old.ID, newRow.ID); err != nil {
				return nil, err
			}
		}
	}
	return bundle, nil
}

// IsRefreshTokenValid verifies signature and shape, then checks the persisted
// row. A row found expired is revoked here as a side effect, mirroring the
// session manager's lazy expiry, so a later check fails identically.
func (s *Service) IsRefreshTokenValid(ctx context.Context, refreshToken string) (bool, error) {
	if _, err := s.issuer.Validate(refreshToken, token.TypeRefresh); err != nil {
		return false, nil
	}
	row, err := s.refreshRepo.GetByTokenHash(ctx, security.HashToken(refreshToken))
	if err != nil {
		return false, err
	}
	if row == nil || row.Revoked {
		return false, nil
	}
	if !row.ExpiresAt.After(s.nowF()) {
		if err := s.refreshRepo.Revoke(ctx, row.ID, "system:expiry", "expired", s.nowF()); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// ValidateToken signature-verifies the token, checks its embedded type, and
// for refresh tokens additionally checks the persisted row is non-revoked and
// unexpired. Every failure collapses to token.ErrInvalidToken.
func (s *Service) ValidateToken(ctx context.Context, tokenString string, expected token.Type) (*token.Claims, error) {
	claims, err := s.issuer.Validate(tokenString, expected)
	if err != nil {
		return nil, token.ErrInvalidToken
	}
	if expected == token.TypeRefresh {
		ok, err := s.IsRefreshTokenValid(ctx, tokenString)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, token.ErrInvalidToken
		}
	}
	return claims, nil
}

// RevokeRefreshToken marks the persisted row revoked with actor and reason.
// Unknown tokens are a no-op success, matching idempotent revoke semantics.
func (s *Service) RevokeRefreshToken(ctx context.Context, refreshToken, revokedBy, reason string) error {
	row, err := s.refreshRepo.GetByTokenHash(ctx, security.HashToken(refreshToken))
	if err != nil {
		return err
	}
	return s.revokeRow(ctx, row, revokedBy, reason)
}

// RevokeSession revokes the session and cascades to every refresh token bound
// to it in one bulk update.
func (s *Service) RevokeSession(ctx context.Context, sessionID, revokedBy, reason string) error {
	if err := s.sessions.Revoke(ctx, sessionID, revokedBy); err != nil {
		return err
	}
	return s.refreshRepo.RevokeAllBySession(ctx, sessionID, revokedBy, reason, s.nowF())
}

// RevokeAllUserTokens bulk-revokes every refresh token owned by the user.
// Session revocation is a separate, complementary step; callers needing a
// full lockout invoke both.
func (s *Service) RevokeAllUserTokens(ctx context.Context, userID, reason string) error {
	return s.refreshRepo.RevokeAllByUser(ctx, userID, userID, reason, s.nowF())
}

func (s *Service) revokeRow(ctx context.Context, row *refreshdomain.RefreshToken, revokedBy, reason string) error {
	if row == nil {
		return nil
	}
	return s.refreshRepo.Revoke(ctx, row.ID, revokedBy, reason, s.nowF())
}

func (s *Service) tenantContext(ctx context.Context, userID string) (string, []string, error) {
	memberships, err := s.memberships.ListMembershipsByUser(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	if len(memberships) == 0 {
		return "", nil, nil
	}
	access := make([]string, len(memberships))
	for i, m := range memberships {
		access[i] = m.TenantID
	}
	return memberships[0].TenantID, access, nil
}

func (s *Service) issuePair(ctx context.Context, cred *credentialdomain.Credential, tenantID string, tenantAccess []string, sessionID string) (*Bundle, error) {
	id := token.Identity{
		UserID:       cred.ID,
		Email:        cred.Email,
		Role:         cred.Role,
		TenantID:     tenantID,
		TenantAccess: tenantAccess,
		SessionID:    sessionID,
	}
	access, _, _, err := s.issuer.IssueAccess(id)
	if err != nil {
		return nil, err
	}
	refresh, _, refreshExp, err := s.issuer.IssueRefresh(id)
	if err != nil {
		return nil, err
	}
	row := &refreshdomain.RefreshToken{
		ID:        uuid.New().String(),
		UserID:    cred.ID,
		SessionID: sessionID,
		TokenHash: security.HashToken(refresh),
		ExpiresAt: refreshExp,
		CreatedAt: s.nowF(),
	}
	if err := s.refreshRepo.Create(ctx, row); err != nil {
		return nil, err
	}
	return &Bundle{
		AccessToken:  access,
		RefreshToken: refresh,
		SessionID:    sessionID,
		User:         UserSummary{ID: cred.ID, Email: cred.Email, Role: cred.Role},
	}, nil
}
