package model

import "time"

// SessionData is the serialized blob stored alongside a session token.
type SessionData struct {
	UserID       string    `json:"userId"`
	LoginTime    time.Time `json:"loginTime"`
	LastActivity time.Time `json:"lastActivity"`
	Method       string    `json:"method"`
}

// Session maps an opaque cookie token to a user.
type Session struct {
	Token     string      `db:"token"`
	Data      SessionData `db:"sess"`
	ExpiresAt time.Time   `db:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
