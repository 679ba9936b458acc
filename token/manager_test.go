package token

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		SigningKey: []byte("test-signing-key-at-least-32-bytes!!"),
		AccessTTL:  15 * time.Minute,
		Issuer:     "shelterly",
	})
	require.NoError(t, err)
	return m
}

func TestIssueParseRoundTrip(t *testing.T) {
	m := testManager(t)

	raw, err := m.Issue("user-1", "shelter", "shelter-9", "sess-1")
	require.NoError(t, err)

	claims, err := m.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UID)
	require.Equal(t, "shelter", claims.Role)
	require.Equal(t, "shelter-9", claims.ShelterID)
	require.Equal(t, "sess-1", claims.SID)
	require.False(t, claims.Stateless())
}

func TestIssueDefaultsToStatelessSession(t *testing.T) {
	m := testManager(t)

	raw, err := m.Issue("user-1", "endUser", "", "")
	require.NoError(t, err)

	claims, err := m.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, StatelessSessionID, claims.SID)
	require.True(t, claims.Stateless())
}

func TestParseRejectsWrongKey(t *testing.T) {
	m := testManager(t)
	other, err := NewManager(Config{
		SigningKey: []byte("a-completely-different-signing-key!!"),
		AccessTTL:  15 * time.Minute,
		Issuer:     "shelterly",
	})
	require.NoError(t, err)

	raw, err := other.Issue("user-1", "endUser", "", "sess-1")
	require.NoError(t, err)

	_, err = m.Parse(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsAlgorithmConfusion(t *testing.T) {
	m := testManager(t)

	// Token signed with an algorithm other than the pinned HS256.
	claims := Claims{UID: "user-1", SID: "sess-1"}
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	claims.Issuer = "shelterly"
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).
		SignedString([]byte("test-signing-key-at-least-32-bytes!!"))
	require.NoError(t, err)

	_, err = m.Parse(forged)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	short, err := NewManager(Config{
		SigningKey: []byte("test-signing-key-at-least-32-bytes!!"),
		AccessTTL:  time.Nanosecond,
		Issuer:     "shelterly",
	})
	require.NoError(t, err)

	raw, err := short.Issue("user-1", "endUser", "", "sess-1")
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	_, err = short.Parse(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionCookieLifecycle(t *testing.T) {
	cfg := CookieConfig{Name: "shelterly_session", Secure: true, RefreshTTL: 30 * 24 * time.Hour}

	rec := httptest.NewRecorder()
	SetSessionCookie(rec, cfg, "raw-refresh-token")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	require.Equal(t, "shelterly_session", c.Name)
	require.Equal(t, "raw-refresh-token", c.Value)
	require.True(t, c.HttpOnly)
	require.True(t, c.Secure)
	require.Equal(t, http.SameSiteLaxMode, c.SameSite)
	require.Equal(t, "/", c.Path)
	require.Greater(t, c.MaxAge, 0)

	rec = httptest.NewRecorder()
	ClearSessionCookie(rec, cfg)
	cookies = rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Empty(t, cookies[0].Value)
	require.Negative(t, cookies[0].MaxAge)
	require.True(t, cookies[0].Expires.Before(time.Now()))
}
