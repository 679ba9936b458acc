package authcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigRequiresSigningKey(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.Validate())

	cfg.Token.SigningKey = []byte("0123456789abcdef0123456789abcdef")
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := DefaultConfig()
	base.Token.SigningKey = []byte("0123456789abcdef0123456789abcdef")

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero access TTL", func(c *Config) { c.Token.AccessTTL = 0 }},
		{"zero refresh TTL", func(c *Config) { c.Session.RefreshTTL = 0 }},
		{"zero lockout threshold", func(c *Config) { c.Lockout.Threshold = 0 }},
		{"zero lockout duration", func(c *Config) { c.Lockout.Duration = 0 }},
		{"too few totp digits", func(c *Config) { c.TOTP.Digits = 4 }},
		{"too many totp digits", func(c *Config) { c.TOTP.Digits = 10 }},
		{"zero totp period", func(c *Config) { c.TOTP.Period = 0 }},
		{"zero rate window", func(c *Config) { c.RateLimit.Window = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "env-signing-key-0123456789abcdef")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("REFRESH_TOKEN_TTL_DAYS", "7")
	t.Setenv("LOCKOUT_THRESHOLD", "3")
	t.Setenv("RATE_LIMIT_MAX_ATTEMPTS", "20")
	t.Setenv("SESSION_COOKIE_NAME", "my_session")
	t.Setenv("COOKIE_SECURE", "false")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, []byte("env-signing-key-0123456789abcdef"), cfg.Token.SigningKey)
	require.Equal(t, 5*time.Minute, cfg.Token.AccessTTL)
	require.Equal(t, 7*24*time.Hour, cfg.Session.RefreshTTL)
	require.Equal(t, 3, cfg.Lockout.Threshold)
	require.Equal(t, 20, cfg.RateLimit.MaxAttempts)
	require.Equal(t, "my_session", cfg.Cookie.Name)
	require.False(t, cfg.Cookie.Secure)
}

func TestLoadConfigFromEnvRequiresKey(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "")
	_, err := LoadConfigFromEnv()
	require.Error(t, err)
}

func TestLoadConfigFromEnvRejectsBadDuration(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "env-signing-key-0123456789abcdef")
	t.Setenv("ACCESS_TOKEN_TTL", "soon")
	_, err := LoadConfigFromEnv()
	require.Error(t, err)
}
