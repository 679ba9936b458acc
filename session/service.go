package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shelterly/authcore/internal/codec"
)

const refreshTokenBytes = 32

// Service implements the session lifecycle over a Store: creation, refresh
// rotation, lookup by presented token, and revocation.
type Service struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewService builds a Service with the given refresh-token TTL.
func NewService(store Store, ttl time.Duration) *Service {
	return &Service{store: store, ttl: ttl, now: time.Now}
}

// WithClock overrides the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create opens a new session for a login. Returns the record and the raw
// refresh token; only the token's hash is stored.
func (s *Service) Create(ctx context.Context, userID, ipAddress, userAgent string) (*Session, string, error) {
	raw, err := codec.RandomToken(refreshTokenBytes)
	if err != nil {
		return nil, "", err
	}

	now := s.now()
	sess := &Session{
		ID:                uuid.NewString(),
		UserID:            userID,
		RefreshTokenHash:  codec.HashToken(raw),
		DeviceFingerprint: codec.DeviceFingerprint(userAgent, ipAddress),
		CreatedAt:         now,
		LastUsedAt:        now,
		ExpiresAt:         now.Add(s.ttl),
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, "", err
	}
	return sess, raw, nil
}

// Rotate exchanges the current refresh token of a usable session for a new
// one, refreshing LastUsedAt, ExpiresAt, and the device fingerprint on the
// same record. Returns ErrNotFound when the session is missing, revoked, or
// expired, and ErrHashMismatch when the provided token lost a concurrent
// rotation race. The moment rotation lands, the old token's hash is gone
// from storage, so replaying it fails lookup. That is the replay-resistance
// mechanism.
func (s *Service) Rotate(ctx context.Context, sessionID, providedRawToken, ipAddress, userAgent string) (*Session, string, error) {
	current, err := s.store.FindByID(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	now := s.now()
	if !current.Usable(now) {
		return nil, "", ErrNotFound
	}

	raw, err := codec.RandomToken(refreshTokenBytes)
	if err != nil {
		return nil, "", err
	}

	rotated, err := s.store.SwapRefreshHash(
		ctx,
		sessionID,
		codec.HashToken(providedRawToken),
		codec.HashToken(raw),
		codec.DeviceFingerprint(userAgent, ipAddress),
		now,
		now.Add(s.ttl),
	)
	if err != nil {
		return nil, "", err
	}
	return rotated, raw, nil
}

// Get loads a session by ID.
func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	return s.store.FindByID(ctx, sessionID)
}

// FindByRefreshToken hashes the presented token and looks it up. Raw tokens
// are never compared directly.
func (s *Service) FindByRefreshToken(ctx context.Context, rawToken string) (*Session, error) {
	if rawToken == "" {
		return nil, ErrNotFound
	}
	return s.store.FindByRefreshTokenHash(ctx, codec.HashToken(rawToken))
}

// RevokeByID marks one session revoked. Idempotent; revoking an unknown
// session is not an error beyond ErrNotFound from the lookup.
func (s *Service) RevokeByID(ctx context.Context, sessionID, reason string) error {
	sess, err := s.store.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if sess.RevokedAt != nil {
		return nil
	}
	sess.Revoke(reason, s.now())
	return s.store.Save(ctx, sess)
}

// RevokeAllForUser revokes every unrevoked session belonging to a user.
func (s *Service) RevokeAllForUser(ctx context.Context, userID, reason string) error {
	return s.store.RevokeAllForUser(ctx, userID, reason, s.now())
}

// ActiveForUser lists the user's usable sessions, most recently used first.
func (s *Service) ActiveForUser(ctx context.Context, userID string) ([]*Session, error) {
	return s.store.ActiveForUser(ctx, userID, s.now())
}
