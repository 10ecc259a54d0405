// Package app wires configuration, storage, and services into a running
// application core. The surrounding transport layer (HTTP or otherwise)
// consumes App; this package owns construction order and shutdown.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ChrisTorres404/authcakes-sub002/internal/audit"
	auditrepo "github.com/ChrisTorres404/authcakes-sub002/internal/audit/repository"
	"github.com/ChrisTorres404/authcakes-sub002/internal/config"
	credentialrepo "github.com/ChrisTorres404/authcakes-sub002/internal/credential/repository"
	credentialsvc "github.com/ChrisTorres404/authcakes-sub002/internal/credential/service"
	"github.com/ChrisTorres404/authcakes-sub002/internal/db"
	identitysvc "github.com/ChrisTorres404/authcakes-sub002/internal/identity/service"
	mfarepo "github.com/ChrisTorres404/authcakes-sub002/internal/mfa/repository"
	"github.com/ChrisTorres404/authcakes-sub002/internal/notify"
	historyrepo "github.com/ChrisTorres404/authcakes-sub002/internal/passwordhistory/repository"
	historysvc "github.com/ChrisTorres404/authcakes-sub002/internal/passwordhistory/service"
	"github.com/ChrisTorres404/authcakes-sub002/internal/policy/engine"
	refreshrepo "github.com/ChrisTorres404/authcakes-sub002/internal/refreshtoken/repository"
	"github.com/ChrisTorres404/authcakes-sub002/internal/security"
	sessionrepo "github.com/ChrisTorres404/authcakes-sub002/internal/session/repository"
	sessionsvc "github.com/ChrisTorres404/authcakes-sub002/internal/session/service"
	telemetryotel "github.com/ChrisTorres404/authcakes-sub002/internal/telemetry/otel"
	tenantrepo "github.com/ChrisTorres404/authcakes-sub002/internal/tenant/repository"
	tenantsvc "github.com/ChrisTorres404/authcakes-sub002/internal/tenant/service"
	"github.com/ChrisTorres404/authcakes-sub002/internal/token"
	tokensvc "github.com/ChrisTorres404/authcakes-sub002/internal/token/service"
)

// App holds the constructed service graph.
type App struct {
	Config *config.Config
	DB     *sql.DB

	Credentials *credentialsvc.Service
	History     *historysvc.Ledger
	Sessions    *sessionsvc.Manager
	Tokens      *tokensvc.Service
	Tenants     *tenantsvc.Service
	Identity    *identitysvc.Service
	Policy      engine.Evaluator

	telemetry *telemetryotel.Providers
}

// New builds the full service graph from configuration. Configuration
// integrity failures (bad TTLs, unparseable signing keys) surface here and
// are fatal to startup by design.
func New(ctx context.Context, cfg *config.Config, notifier notify.Notifier) (*App, error) {
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	privateKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("jwt private key: %w", err)
	}
	publicKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("jwt public key: %w", err)
	}
	issuer, err := token.NewIssuer(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("token issuer: %w", err)
	}

	evaluator, err := engine.NewOPAEvaluator(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("policy engine: %w", err)
	}

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, "authcakes-core", cfg.OTLPInsecure)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	hasher := security.NewHasher(cfg.BcryptCost)

	credentialRepo := credentialrepo.NewPostgresRepository(conn)
	historyRepo := historyrepo.NewPostgresRepository(conn)
	sessionRepo := sessionrepo.NewPostgresRepository(conn)
	refreshRepo := refreshrepo.NewPostgresRepository(conn)
	tenantRepo := tenantrepo.NewPostgresRepository(conn)
	recoveryRepo := mfarepo.NewPostgresRepository(conn)
	auditRepo := auditrepo.NewPostgresRepository(conn)

	credentials := credentialsvc.NewService(credentialRepo, hasher, credentialsvc.Config{
		MaxFailedAttempts: cfg.LockoutMaxAttempts,
		LockoutDuration:   cfg.Lockout(),
		ResetTokenTTL:     cfg.ResetTTL(),
		ResetOTPTTL:       cfg.ResetOTP(),
		RecoveryTokenTTL:  cfg.RecoveryTTL(),
	})
	history := historysvc.NewLedger(historyRepo, hasher, cfg.PasswordHistoryDepth)
	sessions := sessionsvc.NewManager(sessionRepo, cfg.SessionTTL(), cfg.InactivityTimeout())
	tokens := tokensvc.NewService(issuer, credentialRepo, tenantRepo, refreshRepo, sessions)
	tenants := tenantsvc.NewService(tenantRepo)

	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	identity := identitysvc.NewService(identitysvc.Deps{
		Credentials:        credentials,
		History:            history,
		Tokens:             tokens,
		Sessions:           sessions,
		Tenants:            tenants,
		Recovery:           recoveryRepo,
		Policy:             evaluator,
		Notifier:           notifier,
		Audit:              audit.NewLogger(auditRepo),
		Events:             telemetryotel.NewEventEmitter(providers.LoggerProvider),
		Tx:                 db.NewTxManager(conn),
		TOTPIssuer:         cfg.TOTPIssuer,
		Env:                cfg.Env,
		EnforceRecoveryMFA: cfg.MFAEnforceRecovery,
	})

	return &App{
		Config:      cfg,
		DB:          conn,
		Credentials: credentials,
		History:     history,
		Sessions:    sessions,
		Tokens:      tokens,
		Tenants:     tenants,
		Identity:    identity,
		Policy:      evaluator,
		telemetry:   providers,
	}, nil
}

// Close flushes telemetry and closes the database.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if err := a.DB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
