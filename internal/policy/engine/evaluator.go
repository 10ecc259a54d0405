package engine

import "context"

// Evaluator answers the authorization policy questions this core asks:
// whether a token's tenant-access list covers a requested tenant, and whether
// account recovery must present an MFA code.
type Evaluator interface {
	// TenantAllowed reports whether requestedTenant is covered by the token's
	// tenant-access list.
	TenantAllowed(ctx context.Context, tenantAccess []string, requestedTenant string) (bool, error)
	// RecoveryMFARequired reports whether completing account recovery requires
	// an MFA code for an account with the given MFA state. Always true in
	// production when MFA is enabled; the enforce flag governs other
	// environments.
	RecoveryMFARequired(ctx context.Context, mfaEnabled bool, env string, enforce bool) (bool, error)
}
