package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups that match no session.
var ErrNotFound = errors.New("session not found")

// ErrHashMismatch is returned by SwapRefreshHash when the stored hash no
// longer equals the provided one, the signature of a lost rotation race or
// a replayed refresh token.
var ErrHashMismatch = errors.New("refresh hash mismatch")

// Store is the persistence contract for session records. Lookups are exact
// matches on indexed fields. SwapRefreshHash must be a single atomic
// read-modify-write per record: under concurrent rotation with the same
// still-valid token, exactly one caller wins and the rest get
// ErrHashMismatch.
type Store interface {
	FindByID(ctx context.Context, id string) (*Session, error)
	FindByRefreshTokenHash(ctx context.Context, hash string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	SwapRefreshHash(ctx context.Context, sessionID, providedHash, nextHash, fingerprint string, lastUsedAt, expiresAt time.Time) (*Session, error)
	RevokeAllForUser(ctx context.Context, userID, reason string, at time.Time) error
	ActiveForUser(ctx context.Context, userID string, now time.Time) ([]*Session, error)
}
