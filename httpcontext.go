package authcore

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// ReqContext is everything the engine can tell about an incoming request:
// the verified identity (nil when unauthenticated), the raw refresh token
// from the session cookie, and the client address.
type ReqContext struct {
	Identity   *Identity
	RawRefresh string
	ClientIP   string
	UserAgent  string
}

// RequestContext derives a ReqContext from an HTTP request. A missing,
// malformed, or revoked access token yields an unauthenticated context, not
// an error, so handlers decide via the Require helpers.
func (e *Engine) RequestContext(r *http.Request) *ReqContext {
	rc := &ReqContext{
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
	}

	if raw := bearerToken(r); raw != "" {
		if identity, err := e.VerifyAccessToken(r.Context(), raw); err == nil {
			rc.Identity = identity
		}
	}
	if cookie, err := r.Cookie(e.cfg.Cookie.Name); err == nil {
		rc.RawRefresh = cookie.Value
	}
	return rc
}

// bearerToken pulls the access token from the Authorization header. Both
// the standard "Bearer <token>" form and a bare token are accepted.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

// clientIP prefers the first X-Forwarded-For entry, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequireAuth returns the identity or an AuthenticationError. Every other
// Require helper builds on it.
func (c *ReqContext) RequireAuth() (*Identity, error) {
	if c.Identity == nil {
		return nil, &AuthenticationError{Cause: ErrTokenInvalid}
	}
	return c.Identity, nil
}

// RequireAdmin admits only admin identities.
func (c *ReqContext) RequireAdmin() error {
	identity, err := c.RequireAuth()
	if err != nil {
		return err
	}
	if identity.Role != RoleAdmin {
		return &AuthorizationError{Capability: "admin"}
	}
	return nil
}

// RequireSelf admits the named user or an admin.
func (c *ReqContext) RequireSelf(userID string) error {
	identity, err := c.RequireAuth()
	if err != nil {
		return err
	}
	if identity.Role == RoleAdmin || identity.UserID == userID {
		return nil
	}
	return &AuthorizationError{Capability: "account owner"}
}

// RequireShelterStaff admits admins, identities whose token claims the
// shelter, and users on the shelter's stored staff list. The storage
// fallback covers staff added after their current token was issued.
func (e *Engine) RequireShelterStaff(ctx context.Context, rc *ReqContext, shelterID string) error {
	identity, err := rc.RequireAuth()
	if err != nil {
		return err
	}
	if identity.Role == RoleAdmin {
		return nil
	}
	if identity.Role == RoleShelter && identity.ShelterID == shelterID {
		return nil
	}
	isStaff, err := e.shelters.IsShelterStaff(ctx, shelterID, identity.UserID)
	if err != nil {
		return internalErr("staff check", err)
	}
	if !isStaff {
		return &AuthorizationError{Capability: "shelter staff"}
	}
	return nil
}

// RequireApplicationAccess admits the applicant, the receiving shelter's
// staff, and admins. Used for adoption-application records that two parties
// may read.
func (e *Engine) RequireApplicationAccess(ctx context.Context, rc *ReqContext, ownerID, shelterID string) error {
	identity, err := rc.RequireAuth()
	if err != nil {
		return err
	}
	if identity.Role == RoleAdmin || identity.UserID == ownerID {
		return nil
	}
	if err := e.RequireShelterStaff(ctx, rc, shelterID); err == nil {
		return nil
	}
	return &AuthorizationError{Capability: "applicant or shelter staff"}
}
