package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ChrisTorres404/authcakes-sub002/internal/audit/domain"
	auditrepo "github.com/ChrisTorres404/authcakes-sub002/internal/audit/repository"
)

// SentinelTenantID is the tenant_id used for audit events that have no tenant
// context (e.g. login_failure, forgot_password for an unknown email).
const SentinelTenantID = "_system"

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, tenantID, userID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository.
type Logger struct {
	repo auditrepo.Repository
}

// NewLogger returns an AuditLogger that persists to repo.
func NewLogger(repo auditrepo.Repository) *Logger {
	return &Logger{repo: repo}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, tenantID, userID, action, resource, metadata string) {
	if l.repo == nil {
		return
	}
	if tenantID == "" {
		tenantID = SentinelTenantID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
	}
}

// Noop is an AuditLogger that discards events. Used in tests and when audit
// persistence is not wired.
type Noop struct{}

func (Noop) LogEvent(context.Context, string, string, string, string, string) {}
