package rate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testConfig() Config {
	return Config{
		Window:      time.Minute,
		MaxAttempts: 3,
		Protected:   []string{"login", "resetPassword"},
	}
}

func TestMemoryLimiterBudgetAndReset(t *testing.T) {
	l := NewMemoryLimiter(testConfig())
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, "1.2.3.4", "login"); err != nil {
			t.Fatalf("attempt %d rejected: %v", i+1, err)
		}
	}
	if err := l.Allow(ctx, "1.2.3.4", "login"); !errors.Is(err, ErrLimited) {
		t.Fatalf("4th attempt should be limited, got %v", err)
	}

	// New window after resetAt passes.
	now = now.Add(time.Minute + time.Second)
	if err := l.Allow(ctx, "1.2.3.4", "login"); err != nil {
		t.Fatalf("attempt after window reset rejected: %v", err)
	}
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	l := NewMemoryLimiter(testConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = l.Allow(ctx, "1.2.3.4", "login")
	}
	if err := l.Allow(ctx, "5.6.7.8", "login"); err != nil {
		t.Fatalf("other client limited: %v", err)
	}
	if err := l.Allow(ctx, "1.2.3.4", "resetPassword"); err != nil {
		t.Fatalf("other operation limited: %v", err)
	}
}

func TestMemoryLimiterSweepsExpiredWindows(t *testing.T) {
	l := NewMemoryLimiter(testConfig())
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_ = l.Allow(ctx, fmt.Sprintf("10.0.0.%d", i), "login")
	}

	// One attempt from any client after the window passes reclaims the
	// dead entries instead of letting them pile up per client.
	now = now.Add(time.Minute + time.Second)
	if err := l.Allow(ctx, "1.2.3.4", "login"); err != nil {
		t.Fatalf("attempt after expiry rejected: %v", err)
	}

	l.mu.Lock()
	size := len(l.windows)
	l.mu.Unlock()
	if size != 1 {
		t.Fatalf("expected expired windows swept down to 1 live entry, got %d", size)
	}
}

func TestMemoryLimiterIgnoresUnprotectedOperations(t *testing.T) {
	l := NewMemoryLimiter(testConfig())
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if err := l.Allow(ctx, "1.2.3.4", "listPets"); err != nil {
			t.Fatalf("unprotected operation limited: %v", err)
		}
	}
}

func TestRedisLimiterBudgetAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLimiter(client, testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, "1.2.3.4", "login"); err != nil {
			t.Fatalf("attempt %d rejected: %v", i+1, err)
		}
	}
	if err := l.Allow(ctx, "1.2.3.4", "login"); !errors.Is(err, ErrLimited) {
		t.Fatalf("4th attempt should be limited, got %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.Allow(ctx, "1.2.3.4", "login"); err != nil {
		t.Fatalf("attempt after TTL expiry rejected: %v", err)
	}
}

func TestRedisLimiterIgnoresUnprotectedOperations(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLimiter(client, testConfig())
	if err := l.Allow(context.Background(), "1.2.3.4", "listPets"); err != nil {
		t.Fatalf("unprotected operation limited: %v", err)
	}
	if mr.Exists("rl:1.2.3.4:listPets") {
		t.Fatal("unprotected operation should not touch the backend")
	}
}
