package authcore

import (
	"context"

	"go.uber.org/zap"

	"github.com/shelterly/authcore/internal/codec"
)

// VerifyEmail consumes an email-verification token. Expired or unknown
// tokens fail with ErrVerifyTokenInvalid; a fresh one can be requested with
// ResendVerificationEmail.
func (e *Engine) VerifyEmail(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return ErrVerifyTokenInvalid
	}

	u, err := e.users.FindUserByVerifyTokenHash(ctx, codec.HashToken(rawToken))
	if err != nil {
		return internalErr("verify email", err)
	}
	if u == nil || u.EmailVerifyExpiresAt == nil || !u.EmailVerifyExpiresAt.After(e.now()) {
		return ErrVerifyTokenInvalid
	}

	u.EmailVerified = true
	u.EmailVerifyTokenHash = ""
	u.EmailVerifyExpiresAt = nil
	if err := e.users.SaveUser(ctx, u); err != nil {
		return internalErr("verify email", err)
	}

	e.emitAudit(ctx, "email_verified", u.ID, "", "", true, nil)
	return nil
}

// ResendVerificationEmail issues a fresh verification token, replacing any
// outstanding one. Like the reset request, the outcome is uniform whether
// the email exists, is unknown, or is already verified.
func (e *Engine) ResendVerificationEmail(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}

	u, err := e.users.FindUserByEmail(ctx, email)
	if err != nil {
		return internalErr("resend verification", err)
	}
	if u == nil || u.EmailVerified {
		return nil
	}

	raw, err := codec.RandomToken(32)
	if err != nil {
		return internalErr("resend verification", err)
	}
	expiry := e.now().Add(e.cfg.Verify.TokenTTL)
	u.EmailVerifyTokenHash = codec.HashToken(raw)
	u.EmailVerifyExpiresAt = &expiry
	if err := e.users.SaveUser(ctx, u); err != nil {
		return internalErr("resend verification", err)
	}

	if err := e.mailer.SendVerificationEmail(ctx, u.Email, raw); err != nil {
		e.log.Warn("verification email delivery failed", zap.String("user_id", u.ID), zap.Error(err))
	}
	return nil
}
