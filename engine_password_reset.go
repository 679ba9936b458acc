package authcore

import (
	"context"

	"go.uber.org/zap"

	"github.com/shelterly/authcore/internal/codec"
)

const (
	opRequestReset = "requestPasswordReset"
	opResetPass    = "resetPassword"
)

// RequestPasswordReset starts the recovery flow. The outcome is identical
// whether or not the email belongs to an account, so the endpoint cannot be
// used to enumerate users. On a hit a hashed one-time token is stored and
// the raw token mailed out of band.
func (e *Engine) RequestPasswordReset(ctx context.Context, email, ipAddress string) error {
	email = normalizeEmail(email)
	if err := e.allow(ctx, clientKey(ipAddress, email), opRequestReset); err != nil {
		return err
	}
	if err := validateEmail(email); err != nil {
		return err
	}

	u, err := e.users.FindUserByEmail(ctx, email)
	if err != nil {
		return internalErr("request reset", err)
	}
	if u == nil {
		e.emitAudit(ctx, "password_reset_request", "", "", ipAddress, true, nil)
		return nil
	}

	raw, err := codec.RandomToken(32)
	if err != nil {
		return internalErr("request reset", err)
	}
	expiry := e.now().Add(e.cfg.Reset.TokenTTL)
	u.PasswordResetTokenHash = codec.HashToken(raw)
	u.PasswordResetExpiresAt = &expiry
	if err := e.users.SaveUser(ctx, u); err != nil {
		return internalErr("request reset", err)
	}

	if err := e.mailer.SendPasswordResetEmail(ctx, u.Email, raw); err != nil {
		e.log.Warn("reset email delivery failed", zap.String("user_id", u.ID), zap.Error(err))
	}

	e.emitAudit(ctx, "password_reset_request", u.ID, "", ipAddress, true, nil)
	return nil
}

// CompletePasswordReset consumes a reset token and installs the new
// password. The token is single-use, every session is revoked, and any
// lockout state is cleared so the owner can log straight back in. Attempts
// are limited per caller address; every guess is a distinct token, so the
// token itself can never key a window.
func (e *Engine) CompletePasswordReset(ctx context.Context, rawToken, newPassword, ipAddress string) error {
	if rawToken == "" {
		return ErrResetTokenInvalid
	}
	tokenHash := codec.HashToken(rawToken)
	if err := e.allow(ctx, clientKey(ipAddress, tokenHash), opResetPass); err != nil {
		return err
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	u, err := e.users.FindUserByResetTokenHash(ctx, tokenHash)
	if err != nil {
		return internalErr("reset password", err)
	}
	now := e.now()
	if u == nil || u.PasswordResetExpiresAt == nil || !u.PasswordResetExpiresAt.After(now) {
		return ErrResetTokenInvalid
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return internalErr("reset password", err)
	}
	u.PasswordHash = hash
	u.PasswordResetTokenHash = ""
	u.PasswordResetExpiresAt = nil
	u.FailedLoginAttempts = 0
	u.LockoutUntil = nil
	if err := e.users.SaveUser(ctx, u); err != nil {
		return internalErr("reset password", err)
	}

	// A reset means the old password is suspected compromised; nothing
	// issued with it survives.
	if err := e.sessions.RevokeAllForUser(ctx, u.ID, "password_reset"); err != nil {
		return internalErr("reset password", err)
	}

	e.emitAudit(ctx, "password_reset", u.ID, "", ipAddress, true, nil)
	return nil
}

// ChangePassword rotates the password of an authenticated user. The current
// password is re-verified and every session is revoked; the caller is
// expected to log in again with the new credential.
func (e *Engine) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	u, err := e.users.FindUserByID(ctx, userID)
	if err != nil {
		return internalErr("change password", err)
	}
	if u == nil {
		return &AuthenticationError{Cause: ErrInvalidCredentials}
	}

	ok, err := e.hasher.Verify(currentPassword, u.PasswordHash)
	if err != nil {
		return internalErr("change password", err)
	}
	if !ok {
		e.emitAudit(ctx, "password_change", u.ID, "", "", false, ErrInvalidCredentials)
		return &AuthenticationError{Cause: ErrInvalidCredentials}
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return internalErr("change password", err)
	}
	u.PasswordHash = hash
	if err := e.users.SaveUser(ctx, u); err != nil {
		return internalErr("change password", err)
	}

	if err := e.sessions.RevokeAllForUser(ctx, u.ID, "password_change"); err != nil {
		return internalErr("change password", err)
	}

	e.emitAudit(ctx, "password_change", u.ID, "", "", true, nil)
	return nil
}
