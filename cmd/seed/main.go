// seed inserts development sample data for local testing. Idempotent: skips
// inserts if the dev user (dev@example.com) already exists.
package main

import (
	"context"
	"log"

	"github.com/ChrisTorres404/authcakes-sub002/internal/config"
	credentialrepo "github.com/ChrisTorres404/authcakes-sub002/internal/credential/repository"
	credentialsvc "github.com/ChrisTorres404/authcakes-sub002/internal/credential/service"
	"github.com/ChrisTorres404/authcakes-sub002/internal/db"
	historyrepo "github.com/ChrisTorres404/authcakes-sub002/internal/passwordhistory/repository"
	historysvc "github.com/ChrisTorres404/authcakes-sub002/internal/passwordhistory/service"
	"github.com/ChrisTorres404/authcakes-sub002/internal/security"
	tenantrepo "github.com/ChrisTorres404/authcakes-sub002/internal/tenant/repository"
	tenantsvc "github.com/ChrisTorres404/authcakes-sub002/internal/tenant/service"
)

const (
	devUserEmail = "dev@example.com"
	devPassword  = "password123!"
	devOrgName   = "Dev Organization"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	hasher := security.NewHasher(cfg.BcryptCost)

	credentials := credentialsvc.NewService(credentialrepo.NewPostgresRepository(conn), hasher, credentialsvc.Config{
		MaxFailedAttempts: cfg.LockoutMaxAttempts,
		LockoutDuration:   cfg.Lockout(),
		ResetTokenTTL:     cfg.ResetTTL(),
		ResetOTPTTL:       cfg.ResetOTP(),
		RecoveryTokenTTL:  cfg.RecoveryTTL(),
	})
	tenants := tenantsvc.NewService(tenantrepo.NewPostgresRepository(conn))
	history := historysvc.NewLedger(historyrepo.NewPostgresRepository(conn), hasher, cfg.PasswordHistoryDepth)

	existing, err := credentials.FindByEmail(ctx, devUserEmail)
	if err != nil {
		log.Fatalf("lookup dev user: %v", err)
	}
	if existing != nil {
		log.Printf("seed: dev user %s already exists, nothing to do", devUserEmail)
		return
	}

	cred, err := credentials.Create(ctx, credentialsvc.NewCredentialInput{
		Email:    devUserEmail,
		Password: devPassword,
		Role:     "user",
	})
	if err != nil {
		log.Fatalf("create dev user: %v", err)
	}
	if _, err := tenants.CreateWithOwner(ctx, devOrgName, cred.ID); err != nil {
		log.Fatalf("create dev tenant: %v", err)
	}
	if err := history.Add(ctx, cred.ID, cred.PasswordHash); err != nil {
		log.Fatalf("seed password history: %v", err)
	}

	log.Printf("seed: created %s (password %q) with tenant %q", devUserEmail, devPassword, devOrgName)
}
