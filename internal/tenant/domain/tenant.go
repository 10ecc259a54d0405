package domain

import (
	"errors"
	"time"
)

// Tenant is an organizational scope users belong to with a role.
type Tenant struct {
	ID        string
	Name      string
	Status    Status
	CreatedAt time.Time
}

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Validate validates the tenant for persistence. Returns an error describing
// the first validation failure.
func (t *Tenant) Validate() error {
	if t.Name == "" {
		return errors.New("name is required")
	}
	if t.Status == "" {
		t.Status = StatusActive
	}
	return nil
}

// Membership links a user to a tenant with a role.
type Membership struct {
	ID        string
	UserID    string
	TenantID  string
	Role      Role
	CreatedAt time.Time
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Invitation is a pending offer of membership, consumed once by token.
type Invitation struct {
	ID         string
	TenantID   string
	Email      string
	Role       Role
	Token      string
	ExpiresAt  time.Time
	AcceptedAt *time.Time // nil until accepted
	InvitedBy  string
	CreatedAt  time.Time
}
