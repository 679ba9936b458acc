package authcore

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/shelterly/authcore/password"
)

// Config groups every tunable of the engine. Build one with DefaultConfig
// and override, or call LoadConfigFromEnv. Treat as immutable after
// Engine construction.
type Config struct {
	Token     TokenConfig
	Session   SessionConfig
	Lockout   LockoutConfig
	TOTP      TOTPConfig
	Password  password.Config
	Reset     ResetConfig
	Verify    VerifyConfig
	RateLimit RateLimitConfig
	Cookie    CookieConfig
	Audit     AuditConfig
}

// TokenConfig controls access-token issuance.
type TokenConfig struct {
	SigningKey []byte
	AccessTTL  time.Duration
	Issuer     string
	Leeway     time.Duration
}

// SessionConfig controls refresh-token session lifetime.
type SessionConfig struct {
	RefreshTTL time.Duration
}

// LockoutConfig controls failed-login lockout.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// TOTPConfig controls the second-factor code parameters. Defaults follow
// the common interoperability convention (SHA1, 6 digits, 30s period) so
// standard authenticator apps work out of the box.
type TOTPConfig struct {
	Issuer          string
	Digits          int
	Period          int
	Skew            int
	BackupCodeCount int
}

// ResetConfig bounds password-reset token validity.
type ResetConfig struct {
	TokenTTL time.Duration
}

// VerifyConfig bounds email-verification token validity.
type VerifyConfig struct {
	TokenTTL time.Duration
}

// RateLimitConfig drives the per-operation limiter. Protected lists the
// operation identifiers subject to limiting; everything else passes.
type RateLimitConfig struct {
	Window      time.Duration
	MaxAttempts int
	Protected   []string
}

// CookieConfig controls the session cookie emitted alongside refresh tokens.
type CookieConfig struct {
	Name   string
	Secure bool
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// ProtectedOperations is the default set of authentication-sensitive
// operation identifiers subject to rate limiting.
var ProtectedOperations = []string{
	"login",
	"register",
	"requestPasswordReset",
	"resetPassword",
	"verifyTwoFactor",
}

// DefaultConfig returns the production defaults. SigningKey must still be
// provided by the caller.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL: 15 * time.Minute,
			Issuer:    "shelterly",
		},
		Session: SessionConfig{
			RefreshTTL: 30 * 24 * time.Hour,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer:          "Shelterly",
			Digits:          6,
			Period:          30,
			Skew:            1,
			BackupCodeCount: 8,
		},
		Password: password.Config{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Reset:  ResetConfig{TokenTTL: time.Hour},
		Verify: VerifyConfig{TokenTTL: 24 * time.Hour},
		RateLimit: RateLimitConfig{
			Window:      15 * time.Minute,
			MaxAttempts: 10,
			Protected:   ProtectedOperations,
		},
		Cookie: CookieConfig{Name: "shelterly_session", Secure: true},
		Audit:  AuditConfig{Enabled: true, BufferSize: 256, DropIfFull: true},
	}
}

// LoadConfigFromEnv builds a Config from the recognized environment
// variables, falling back to DefaultConfig values. JWT_SIGNING_KEY is the
// only required variable.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	key := os.Getenv("JWT_SIGNING_KEY")
	if key == "" {
		return Config{}, errors.New("missing required environment variable JWT_SIGNING_KEY")
	}
	cfg.Token.SigningKey = []byte(key)

	if v := os.Getenv("ACCESS_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, errors.New("invalid ACCESS_TOKEN_TTL: " + v)
		}
		cfg.Token.AccessTTL = d
	}
	cfg.Session.RefreshTTL = time.Duration(getEnvAsInt("REFRESH_TOKEN_TTL_DAYS", 30)) * 24 * time.Hour
	cfg.Lockout.Threshold = getEnvAsInt("LOCKOUT_THRESHOLD", cfg.Lockout.Threshold)
	cfg.Lockout.Duration = time.Duration(getEnvAsInt("LOCKOUT_DURATION_MINUTES", 15)) * time.Minute
	cfg.Reset.TokenTTL = time.Duration(getEnvAsInt("PASSWORD_RESET_TTL_MINUTES", 60)) * time.Minute
	cfg.Verify.TokenTTL = time.Duration(getEnvAsInt("EMAIL_VERIFY_TTL_HOURS", 24)) * time.Hour
	cfg.RateLimit.Window = time.Duration(getEnvAsInt("RATE_LIMIT_WINDOW_MINUTES", 15)) * time.Minute
	cfg.RateLimit.MaxAttempts = getEnvAsInt("RATE_LIMIT_MAX_ATTEMPTS", cfg.RateLimit.MaxAttempts)
	cfg.Cookie.Name = getEnv("SESSION_COOKIE_NAME", cfg.Cookie.Name)
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		cfg.Cookie.Secure = v != "false" && v != "0"
	}

	return cfg, cfg.Validate()
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if len(c.Token.SigningKey) == 0 {
		return errors.New("token signing key is required")
	}
	if c.Token.AccessTTL <= 0 {
		return errors.New("access token TTL must be positive")
	}
	if c.Session.RefreshTTL <= 0 {
		return errors.New("refresh token TTL must be positive")
	}
	if c.Lockout.Threshold <= 0 {
		return errors.New("lockout threshold must be positive")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("lockout duration must be positive")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("totp digits must be between 6 and 8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("totp period must be positive")
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.MaxAttempts <= 0 {
		return errors.New("rate limit window and max attempts must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}
