package domain

import "time"

// RecoveryCode is one single-use fallback credential for bypassing MFA.
// Codes are stored hashed and consumed individually.
type RecoveryCode struct {
	ID        string
	UserID    string
	CodeHash  string
	Used      bool
	UsedAt    *time.Time // nil until consumed
	CreatedAt time.Time
}
