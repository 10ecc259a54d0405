package domain

import "time"

// Event is one structured auth event (tenant-scoped, optional user/session).
type Event struct {
	TenantID  string
	UserID    string
	SessionID string
	EventType string
	Source    string
	Metadata  []byte // JSON
	CreatedAt time.Time
}
