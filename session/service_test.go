package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shelterly/authcore/memstore"
	"github.com/shelterly/authcore/session"
)

func newService(ttl time.Duration) (*session.Service, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc := session.NewService(memstore.NewSessionStore(), ttl).WithClock(clock.Now)
	return svc, clock
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestCreateStoresHashNotToken(t *testing.T) {
	svc, _ := newService(time.Hour)
	ctx := context.Background()

	sess, raw, err := svc.Create(ctx, "u1", "203.0.113.9", "agent")
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	require.NotEqual(t, raw, sess.RefreshTokenHash)
	require.NotEmpty(t, sess.DeviceFingerprint)

	found, err := svc.FindByRefreshToken(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, sess.ID, found.ID)

	_, err = svc.FindByRefreshToken(ctx, "")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestRotateInvalidatesOldToken(t *testing.T) {
	svc, clock := newService(time.Hour)
	ctx := context.Background()

	sess, raw, err := svc.Create(ctx, "u1", "203.0.113.9", "agent")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	rotated, newRaw, err := svc.Rotate(ctx, sess.ID, raw, "198.51.100.7", "other-agent")
	require.NoError(t, err)
	require.Equal(t, sess.ID, rotated.ID)
	require.NotEqual(t, raw, newRaw)
	require.True(t, rotated.LastUsedAt.After(sess.LastUsedAt))
	require.True(t, rotated.ExpiresAt.After(sess.ExpiresAt))

	// The record tracks the device that actually rotated the token.
	require.NotEqual(t, sess.DeviceFingerprint, rotated.DeviceFingerprint)

	// The old token is gone from storage the moment rotation lands.
	_, err = svc.FindByRefreshToken(ctx, raw)
	require.ErrorIs(t, err, session.ErrNotFound)

	// Replaying it against the session loses the compare.
	_, _, err = svc.Rotate(ctx, sess.ID, raw, "", "")
	require.ErrorIs(t, err, session.ErrHashMismatch)
}

func TestRotateRefusesDeadSessions(t *testing.T) {
	svc, clock := newService(time.Hour)
	ctx := context.Background()

	sess, raw, err := svc.Create(ctx, "u1", "", "")
	require.NoError(t, err)

	_, _, err = svc.Rotate(ctx, "no-such-session", raw, "", "")
	require.ErrorIs(t, err, session.ErrNotFound)

	require.NoError(t, svc.RevokeByID(ctx, sess.ID, "logout"))
	_, _, err = svc.Rotate(ctx, sess.ID, raw, "", "")
	require.ErrorIs(t, err, session.ErrNotFound)

	expired, raw2, err := svc.Create(ctx, "u2", "", "")
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	_, _, err = svc.Rotate(ctx, expired.ID, raw2, "", "")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestConcurrentRotationSingleWinner(t *testing.T) {
	svc, _ := newService(time.Hour)
	ctx := context.Background()

	sess, raw, err := svc.Create(ctx, "u1", "", "")
	require.NoError(t, err)

	const racers = 16
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.Rotate(ctx, sess.ID, raw, "", "")
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			require.ErrorIs(t, err, session.ErrHashMismatch)
		}
	}
	require.Equal(t, 1, winners)
}

func TestRevocation(t *testing.T) {
	svc, _ := newService(time.Hour)
	ctx := context.Background()

	a, _, err := svc.Create(ctx, "u1", "", "")
	require.NoError(t, err)
	b, _, err := svc.Create(ctx, "u1", "", "")
	require.NoError(t, err)
	other, _, err := svc.Create(ctx, "u2", "", "")
	require.NoError(t, err)

	// Revoking twice, or revoking the unknown, is quiet.
	require.NoError(t, svc.RevokeByID(ctx, a.ID, "logout"))
	require.NoError(t, svc.RevokeByID(ctx, a.ID, "logout"))
	require.NoError(t, svc.RevokeByID(ctx, "no-such-session", "logout"))

	require.NoError(t, svc.RevokeAllForUser(ctx, "u1", "password_reset"))

	active, err := svc.ActiveForUser(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, active)

	got, err := svc.Get(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, "password_reset", got.RevokedReason)

	active, err = svc.ActiveForUser(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, other.ID, active[0].ID)
}

func TestActiveForUserOrdering(t *testing.T) {
	svc, clock := newService(24 * time.Hour)
	ctx := context.Background()

	first, _, err := svc.Create(ctx, "u1", "", "")
	require.NoError(t, err)
	clock.Advance(time.Hour)
	second, _, err := svc.Create(ctx, "u1", "", "")
	require.NoError(t, err)

	active, err := svc.ActiveForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, second.ID, active[0].ID)
	require.Equal(t, first.ID, active[1].ID)
}
