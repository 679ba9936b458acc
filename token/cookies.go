package token

import (
	"net/http"
	"time"
)

// CookieConfig shapes the session cookie carrying the raw refresh token.
type CookieConfig struct {
	Name       string
	Secure     bool
	RefreshTTL time.Duration
}

// SetSessionCookie writes the refresh token as an HTTP-only, SameSite=Lax
// cookie scoped to the whole path, expiring with the refresh TTL.
func SetSessionCookie(w http.ResponseWriter, cfg CookieConfig, rawRefreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Name,
		Value:    rawRefreshToken,
		Path:     "/",
		MaxAge:   int(cfg.RefreshTTL.Seconds()),
		Expires:  time.Now().Add(cfg.RefreshTTL),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie overwrites the session cookie with an epoch expiry.
func ClearSessionCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
