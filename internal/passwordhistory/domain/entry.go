package domain

import "time"

// Entry is one retained prior password hash for a user. Entries are
// append-only and pruned to a bounded recent count.
type Entry struct {
	ID           string
	UserID       string
	PasswordHash string
	CreatedAt    time.Time
}
