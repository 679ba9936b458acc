package authcore

import (
	"context"
	"errors"

	"github.com/shelterly/authcore/session"
)

// Refresh exchanges a presented refresh token for a new token pair. The old
// refresh token is dead the moment rotation lands; a replay of it only sees
// ErrSessionInvalid.
func (e *Engine) Refresh(ctx context.Context, rawRefreshToken, ipAddress, userAgent string) (*LoginResult, error) {
	sess, err := e.sessions.FindByRefreshToken(ctx, rawRefreshToken)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, internalErr("refresh", err)
	}
	if !sess.Usable(e.now()) {
		return nil, ErrSessionInvalid
	}

	u, err := e.users.FindUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, internalErr("refresh", err)
	}
	if u == nil {
		return nil, ErrSessionInvalid
	}

	rotated, newRaw, err := e.sessions.Rotate(ctx, sess.ID, rawRefreshToken, ipAddress, userAgent)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrHashMismatch) {
			return nil, ErrSessionInvalid
		}
		return nil, internalErr("refresh", err)
	}

	access, err := e.tokens.Issue(u.ID, string(u.Role), u.ShelterID, rotated.ID)
	if err != nil {
		return nil, internalErr("refresh", err)
	}

	e.emitAudit(ctx, "refresh", u.ID, rotated.ID, ipAddress, true, nil)
	return &LoginResult{
		UserID:       u.ID,
		AccessToken:  access,
		RefreshToken: newRaw,
		SessionID:    rotated.ID,
	}, nil
}

// Logout revokes the caller's session. The session id is taken from the
// access token when one is presented, falling back to the refresh token.
// Logging out an already-dead session is a no-op, not an error.
func (e *Engine) Logout(ctx context.Context, accessToken, rawRefreshToken string) error {
	sessionID := ""
	userID := ""

	if accessToken != "" {
		if claims, err := e.tokens.Parse(accessToken); err == nil && !claims.Stateless() {
			sessionID = claims.SID
			userID = claims.UID
		}
	}
	if sessionID == "" && rawRefreshToken != "" {
		sess, err := e.sessions.FindByRefreshToken(ctx, rawRefreshToken)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return nil
			}
			return internalErr("logout", err)
		}
		sessionID = sess.ID
		userID = sess.UserID
	}
	if sessionID == "" {
		return nil
	}

	if err := e.sessions.RevokeByID(ctx, sessionID, "logout"); err != nil {
		return internalErr("logout", err)
	}
	e.emitAudit(ctx, "logout", userID, sessionID, "", true, nil)
	return nil
}

// LogoutAll revokes every session the user has.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if err := e.sessions.RevokeAllForUser(ctx, userID, "logout_all"); err != nil {
		return internalErr("logout all", err)
	}
	e.emitAudit(ctx, "logout_all", userID, "", "", true, nil)
	return nil
}

// ListSessions returns the user's active sessions, most recently used first,
// for a "your devices" view.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	sessions, err := e.sessions.ActiveForUser(ctx, userID)
	if err != nil {
		return nil, internalErr("list sessions", err)
	}
	return sessions, nil
}

// RevokeSession revokes one named session, for kicking a single device.
func (e *Engine) RevokeSession(ctx context.Context, sessionID string) error {
	if err := e.sessions.RevokeByID(ctx, sessionID, "revoked"); err != nil {
		return internalErr("revoke session", err)
	}
	return nil
}

// VerifyAccessToken validates an access token and, for session-backed
// tokens, confirms the session is still usable. Stateless tokens skip the
// session check and cannot be revoked before expiry.
func (e *Engine) VerifyAccessToken(ctx context.Context, tokenStr string) (*Identity, error) {
	claims, err := e.tokens.Parse(tokenStr)
	if err != nil {
		return nil, &AuthenticationError{Cause: ErrTokenInvalid}
	}

	if !claims.Stateless() {
		sess, err := e.sessions.Get(ctx, claims.SID)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return nil, &AuthenticationError{Cause: ErrSessionInvalid}
			}
			return nil, internalErr("verify token", err)
		}
		if !sess.Usable(e.now()) {
			return nil, &AuthenticationError{Cause: ErrSessionInvalid}
		}
	}

	return &Identity{
		UserID:    claims.UID,
		Role:      Role(claims.Role),
		ShelterID: claims.ShelterID,
		SessionID: claims.SID,
	}, nil
}
