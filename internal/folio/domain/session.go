package domain

import "time"

type Session struct {
	ID        string // ULID
	TokenHash string // sha256 fingerprint, the raw token is never stored
	AccountID int64
	ExpiresAt time.Time
	CreatedAt time.Time
	UserAgent string
	IPAddress string
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
