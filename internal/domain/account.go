package domain

import "time"

// Account is a server login remembered on this device. The session token
// itself lives in the OS keyring, keyed by ID.
type Account struct {
	ID        string
	Username  string
	UserID    string
	BaseURL   string
	CreatedAt time.Time
}
