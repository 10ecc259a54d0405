package domain

import "time"

// RefreshToken is the persisted counterpart of a signed refresh token,
// stored by hash so the raw value never touches disk. SessionID is empty
// after its session row is deleted (set-null binding). ReplacedBy chains a
// rotated token to its successor.
type RefreshToken struct {
	ID         string
	UserID     string
	SessionID  string
	TokenHash  string
	ExpiresAt  time.Time
	Revoked    bool
	RevokedAt  *time.Time
	RevokedBy  string
	Reason     string
	ReplacedBy string
	CreatedAt  time.Time
}
