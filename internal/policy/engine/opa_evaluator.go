package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
)

const policyPackage = "data.authcakes.authz"

// Rego policy for tenant scoping and recovery MFA enforcement.
const authzPolicy = `package authcakes.authz

default tenant_allowed = false

tenant_allowed if {
	some t in input.token.tenant_access
	t == input.request.tenant_id
}

default recovery_mfa_required = false

recovery_mfa_required if {
	input.account.mfa_enabled
	input.policy.env == "production"
}

recovery_mfa_required if {
	input.account.mfa_enabled
	input.policy.enforce
}
`

// OPAEvaluator evaluates authorization policy using OPA Rego, compiled once
// at construction.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles the policy and returns an OPA-based evaluator.
// Compilation failure is a startup error.
func NewOPAEvaluator(ctx context.Context) (*OPAEvaluator, error) {
	q, err := rego.New(
		rego.Query(policyPackage),
		rego.Module("authz.rego", authzPolicy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: compile: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// TenantAllowed reports whether requestedTenant appears in tenantAccess.
func (e *OPAEvaluator) TenantAllowed(ctx context.Context, tenantAccess []string, requestedTenant string) (bool, error) {
	input := map[string]interface{}{
		"token":   map[string]interface{}{"tenant_access": tenantAccess},
		"request": map[string]interface{}{"tenant_id": requestedTenant},
	}
	return e.evalBool(ctx, input, "tenant_allowed")
}

// RecoveryMFARequired reports whether recovery must present an MFA code.
func (e *OPAEvaluator) RecoveryMFARequired(ctx context.Context, mfaEnabled bool, env string, enforce bool) (bool, error) {
	input := map[string]interface{}{
		"account": map[string]interface{}{"mfa_enabled": mfaEnabled},
		"policy":  map[string]interface{}{"env": env, "enforce": enforce},
	}
	return e.evalBool(ctx, input, "recovery_mfa_required")
}

func (e *OPAEvaluator) evalBool(ctx context.Context, input map[string]interface{}, rule string) (bool, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("policy: eval: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, fmt.Errorf("policy: no result for %s", rule)
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return false, fmt.Errorf("policy: unexpected result shape for %s", rule)
	}
	v, ok := doc[rule].(bool)
	if !ok {
		return false, fmt.Errorf("policy: rule %s missing or non-boolean", rule)
	}
	return v, nil
}
