package domain

import "time"

// DeviceInfo is free-form metadata about the client that opened the session.
type DeviceInfo struct {
	IPAddress string
	UserAgent string
	Device    string
}

// Session anchors one login instance. Revoked and Expired are terminal;
// expiry is derived at check time, not stored as a flag. Sessions are never
// physically deleted, only soft-revoked.
type Session struct {
	ID         string
	UserID     string
	Device     DeviceInfo
	ExpiresAt  time.Time
	LastUsedAt *time.Time // nil until first activity bump
	Active     bool
	Revoked    bool
	RevokedAt  *time.Time
	RevokedBy  string
	CreatedAt  time.Time
}
