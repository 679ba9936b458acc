package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shelterly/authcore/internal/audit"
	"github.com/shelterly/authcore/internal/codec"
	"github.com/shelterly/authcore/internal/rate"
	"github.com/shelterly/authcore/password"
	"github.com/shelterly/authcore/session"
	"github.com/shelterly/authcore/token"
)

// RateLimiter throttles authentication-sensitive operations per client.
// Allow returns nil when the call may proceed. The built-in limiters key by
// clientID and operation over a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, clientID, operation string) error
}

// Params wires the engine's collaborators. Users and Sessions are required;
// the rest default to safe no-op implementations.
type Params struct {
	Config   Config
	Users    UserStore
	Shelters ShelterDirectory
	Sessions session.Store
	Mailer   Mailer

	// Limiter overrides the built-in in-process limiter. Leave nil and set
	// Redis to share rate-limit state across instances instead.
	Limiter RateLimiter
	Redis   redis.UniversalClient

	Logger *zap.Logger
}

// Engine is the authentication core. It owns credential verification, the
// session lifecycle, second-factor management, and the account-recovery
// token flows. Construct with New; methods are safe for concurrent use.
type Engine struct {
	cfg      Config
	users    UserStore
	shelters ShelterDirectory
	sessions *session.Service
	tokens   *token.Manager
	mailer   Mailer
	limiter  RateLimiter
	secrets  *codec.SecretBox
	totp     *totpManager
	hasher   *password.Hasher
	audit    *audit.Dispatcher
	log      *zap.Logger
	now      func() time.Time

	// dummyHash is verified against when the account does not exist, so
	// hits and misses cost the same.
	dummyHash string
}

// New validates the configuration and assembles an Engine.
func New(p Params) (*Engine, error) {
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}
	if p.Users == nil || p.Sessions == nil {
		return nil, ErrEngineNotReady
	}

	hasher, err := password.NewHasher(p.Config.Password)
	if err != nil {
		return nil, err
	}
	dummyHash, err := hasher.Hash("timing-equalizer")
	if err != nil {
		return nil, err
	}
	secrets, err := codec.NewSecretBox(p.Config.Token.SigningKey)
	if err != nil {
		return nil, err
	}
	tokens, err := token.NewManager(token.Config{
		SigningKey: p.Config.Token.SigningKey,
		AccessTTL:  p.Config.Token.AccessTTL,
		Issuer:     p.Config.Token.Issuer,
		Leeway:     p.Config.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := p.Limiter
	if limiter == nil {
		rateCfg := rate.Config{
			Window:      p.Config.RateLimit.Window,
			MaxAttempts: p.Config.RateLimit.MaxAttempts,
			Protected:   p.Config.RateLimit.Protected,
		}
		if p.Redis != nil {
			limiter = rate.NewRedisLimiter(p.Redis, rateCfg)
		} else {
			limiter = rate.NewMemoryLimiter(rateCfg)
		}
	}

	shelters := p.Shelters
	if shelters == nil {
		shelters = nullDirectory{}
	}
	mailer := p.Mailer
	if mailer == nil {
		mailer = noopMailer{}
	}

	var dispatcher *audit.Dispatcher
	if p.Config.Audit.Enabled {
		dispatcher = audit.NewDispatcher(audit.Config{
			Enabled:    true,
			BufferSize: p.Config.Audit.BufferSize,
			DropIfFull: p.Config.Audit.DropIfFull,
		}, audit.NewZapSink(logger))
	}

	return &Engine{
		cfg:       p.Config,
		users:     p.Users,
		shelters:  shelters,
		sessions:  session.NewService(p.Sessions, p.Config.Session.RefreshTTL),
		tokens:    tokens,
		mailer:    mailer,
		limiter:   limiter,
		secrets:   secrets,
		totp:      newTOTPManager(p.Config.TOTP),
		hasher:    hasher,
		dummyHash: dummyHash,
		audit:     dispatcher,
		log:       logger,
		now:       time.Now,
	}, nil
}

// WithClock replaces the engine's time source. Test helper.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	e.sessions.WithClock(now)
	if ml, ok := e.limiter.(*rate.MemoryLimiter); ok {
		ml.WithClock(now)
	}
	return e
}

// Close drains the audit dispatcher. Call once at shutdown.
func (e *Engine) Close() {
	e.audit.Close()
}

// CookieConfig exposes the cookie settings for the token helpers.
func (e *Engine) CookieConfig() token.CookieConfig {
	return token.CookieConfig{
		Name:       e.cfg.Cookie.Name,
		Secure:     e.cfg.Cookie.Secure,
		RefreshTTL: e.cfg.Session.RefreshTTL,
	}
}

func (e *Engine) emitAudit(ctx context.Context, eventType, userID, sessionID, ip string, success bool, opErr error) {
	if e.audit == nil {
		return
	}
	event := audit.Event{
		Timestamp: e.now(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        ip,
		Success:   success,
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}
	e.audit.Emit(ctx, event)
}

// allow consults the rate limiter and maps its refusal to the public error
// taxonomy.
func (e *Engine) allow(ctx context.Context, clientID, operation string) error {
	if e.limiter == nil || clientID == "" {
		return nil
	}
	if err := e.limiter.Allow(ctx, clientID, operation); err != nil {
		if errors.Is(err, rate.ErrLimited) {
			return &RateLimitError{Operation: operation}
		}
		// A broken limiter backend must not lock everyone out.
		e.log.Warn("rate limiter unavailable", zap.String("operation", operation), zap.Error(err))
	}
	return nil
}

// clientKey picks the limiter key for an attempt: the caller's network
// address when the transport supplied one, otherwise the given fallback so
// callers without one still share a window instead of bypassing it.
func clientKey(ipAddress, fallback string) string {
	if ipAddress != "" {
		return ipAddress
	}
	return fallback
}

// issueSession creates a revocable session and the token pair for it.
func (e *Engine) issueSession(ctx context.Context, u *User, ip, userAgent string) (*LoginResult, error) {
	sess, rawRefresh, err := e.sessions.Create(ctx, u.ID, ip, userAgent)
	if err != nil {
		return nil, internalErr("session create", err)
	}
	access, err := e.tokens.Issue(u.ID, string(u.Role), u.ShelterID, sess.ID)
	if err != nil {
		return nil, internalErr("token issue", err)
	}
	return &LoginResult{
		UserID:       u.ID,
		AccessToken:  access,
		RefreshToken: rawRefresh,
		SessionID:    sess.ID,
	}, nil
}

type noopMailer struct{}

func (noopMailer) SendVerificationEmail(context.Context, string, string) error  { return nil }
func (noopMailer) SendPasswordResetEmail(context.Context, string, string) error { return nil }

type nullDirectory struct{}

func (nullDirectory) FindShelterByName(context.Context, string) (*Shelter, error) { return nil, nil }
func (nullDirectory) CreateShelter(context.Context, *Shelter) error               { return nil }
func (nullDirectory) IsShelterStaff(context.Context, string, string) (bool, error) {
	return false, nil
}
