// Package session owns the stateful session model: one record per logical
// device login, usable for refresh only while unrevoked and unexpired.
// The raw refresh token is never persisted; rotation overwrites the stored
// hash in place, which is what invalidates a replayed token.
package session

import "time"

// Session is one device login. RefreshTokenHash is the SHA-256 hex digest
// of the current refresh token; DeviceFingerprint is informational metadata
// derived from user agent and IP, not a security boundary.
type Session struct {
	ID                string
	UserID            string
	RefreshTokenHash  string
	DeviceFingerprint string
	CreatedAt         time.Time
	LastUsedAt        time.Time
	ExpiresAt         time.Time
	RevokedAt         *time.Time
	RevokedReason     string
}

// Usable reports whether the session may still be refreshed: not revoked
// and not expired at now.
func (s *Session) Usable(now time.Time) bool {
	return s != nil && s.RevokedAt == nil && s.ExpiresAt.After(now)
}

// Revoke marks the session revoked. Idempotent: an already-revoked session
// keeps its original timestamp and reason.
func (s *Session) Revoke(reason string, at time.Time) {
	if s.RevokedAt != nil {
		return
	}
	s.RevokedAt = &at
	s.RevokedReason = reason
}
