// Package token issues and verifies the short-lived signed access tokens
// carrying identity and role claims, and builds the session cookie that
// transports the long-lived refresh token.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// StatelessSessionID marks tokens with no revocable session behind them.
const StatelessSessionID = "stateless"

// ErrInvalidToken is returned for any parse or verification failure.
// The message is uniform; the cause stays server-side.
var ErrInvalidToken = errors.New("invalid token")

// Config holds signing parameters. The algorithm is fixed to HS256; token
// headers never choose it.
type Config struct {
	SigningKey []byte
	AccessTTL  time.Duration
	Issuer     string
	Leeway     time.Duration
}

// Claims is the access-token claim set: user id, role, shelter affiliation,
// and the session the token is bound to.
type Claims struct {
	UID       string `json:"uid"`
	Role      string `json:"role"`
	ShelterID string `json:"shelter_id,omitempty"`
	SID       string `json:"sid"`
	jwt.RegisteredClaims
}

// Manager signs and parses access tokens with a single server-wide key.
type Manager struct {
	config Config
}

// NewManager validates the config and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("token manager requires a signing key")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway")
	}
	return &Manager{config: cfg}, nil
}

// Issue signs a token for the given claims. SessionID falls back to
// StatelessSessionID when empty so every token carries an explicit sid.
func (m *Manager) Issue(userID, role, shelterID, sessionID string) (string, error) {
	if sessionID == "" {
		sessionID = StatelessSessionID
	}

	now := time.Now()
	claims := Claims{
		UID:       userID,
		Role:      role,
		ShelterID: shelterID,
		SID:       sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.SigningKey)
}

// Parse verifies signature, expiry, and issuer, and returns the claims.
// The signing algorithm is pinned in both the parser options and the
// keyfunc, so a token header can never negotiate a different one.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.SigningKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Stateless reports whether the claims carry no revocable session.
func (c *Claims) Stateless() bool {
	return c.SID == StatelessSessionID
}
