// Package rate limits authentication-sensitive operations per client.
// Two implementations share one contract: an in-process window map for
// single-instance deployments and a Redis fixed-window counter for
// multi-instance ones.
package rate

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLimited is returned when a client has exhausted its attempt budget for
// an operation within the current window.
var ErrLimited = errors.New("rate limited")

// Limiter decides whether one more attempt at an operation is allowed for a
// client. Operations outside the protected set always pass.
type Limiter interface {
	Allow(ctx context.Context, clientID, operation string) error
}

// Config tunes window length, budget, and the protected operation set.
type Config struct {
	Window      time.Duration
	MaxAttempts int
	Protected   []string
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is the in-process implementation: a map keyed by
// clientID:operation, each entry a counted window. State lives for the
// process lifetime; restarting fails open, which is the accepted tradeoff.
type MemoryLimiter struct {
	cfg       Config
	protected map[string]struct{}
	now       func() time.Time

	mu      sync.Mutex
	windows map[string]*window
	sweepAt time.Time
}

// NewMemoryLimiter builds the in-process limiter.
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	protected := make(map[string]struct{}, len(cfg.Protected))
	for _, op := range cfg.Protected {
		protected[op] = struct{}{}
	}
	return &MemoryLimiter{
		cfg:       cfg,
		protected: protected,
		now:       time.Now,
		windows:   make(map[string]*window),
	}
}

// WithClock overrides the time source. Test hook.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

// Allow counts one attempt. At most once per window length the whole map is
// swept of expired entries, so keys for clients never seen again do not
// accumulate.
func (l *MemoryLimiter) Allow(_ context.Context, clientID, operation string) error {
	if _, ok := l.protected[operation]; !ok {
		return nil
	}

	key := clientID + ":" + operation
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		l.windows[key] = &window{count: 1, resetAt: now.Add(l.cfg.Window)}
		return nil
	}

	w.count++
	if w.count > l.cfg.MaxAttempts {
		return ErrLimited
	}
	return nil
}

// sweep drops every expired window. Called with the lock held.
func (l *MemoryLimiter) sweep(now time.Time) {
	if now.Before(l.sweepAt) {
		return
	}
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
	l.sweepAt = now.Add(l.cfg.Window)
}
