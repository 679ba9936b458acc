package authcore

import (
	"context"

	"go.uber.org/zap"
)

// Login verifies credentials and, when a second factor is enforced, either
// gates on it or verifies the supplied code. A valid password on a 2FA
// account without a code returns RequiresTwoFactor with no tokens; that is
// the expected first half of the two-step login, not a failure.
func (e *Engine) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := normalizeEmail(in.Email)
	if err := e.allow(ctx, clientKey(in.IPAddress, email), opLogin); err != nil {
		return nil, err
	}
	if email == "" || in.Password == "" {
		return nil, &ValidationError{Reason: "email and password are required"}
	}

	u, err := e.users.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, internalErr("login", err)
	}
	if u == nil {
		_, _ = e.hasher.Verify(in.Password, e.dummyHash)
		e.emitAudit(ctx, "login", "", "", in.IPAddress, false, ErrInvalidCredentials)
		return nil, &AuthenticationError{Cause: ErrInvalidCredentials}
	}

	now := e.now()
	if u.LockoutUntil != nil && u.LockoutUntil.After(now) {
		e.emitAudit(ctx, "login", u.ID, "", in.IPAddress, false, ErrAccountLocked)
		return nil, &LockoutError{}
	}

	ok, err := e.hasher.Verify(in.Password, u.PasswordHash)
	if err != nil {
		return nil, internalErr("login", err)
	}
	if !ok {
		e.recordFailedAttempt(ctx, u)
		e.emitAudit(ctx, "login", u.ID, "", in.IPAddress, false, ErrInvalidCredentials)
		return nil, &AuthenticationError{Cause: ErrInvalidCredentials}
	}

	if u.TwoFactor.Enabled() {
		if in.TOTPCode == "" && in.BackupCode == "" {
			return &LoginResult{UserID: u.ID, RequiresTwoFactor: true}, nil
		}
		if err := e.verifySecondFactor(ctx, u, in); err != nil {
			e.emitAudit(ctx, "login", u.ID, "", in.IPAddress, false, err)
			return nil, err
		}
	}

	u.FailedLoginAttempts = 0
	u.LockoutUntil = nil
	lastLogin := now
	u.LastLoginAt = &lastLogin
	if err := e.users.SaveUser(ctx, u); err != nil {
		return nil, internalErr("login", err)
	}

	result, err := e.issueSession(ctx, u, in.IPAddress, in.UserAgent)
	if err != nil {
		return nil, err
	}
	e.emitAudit(ctx, "login", u.ID, result.SessionID, in.IPAddress, true, nil)
	return result, nil
}

// verifySecondFactor checks the TOTP code when present, otherwise the backup
// code. A consumed backup code is removed from the stored hashes as part of
// the successful login's save. Failures count toward lockout like a wrong
// password.
func (e *Engine) verifySecondFactor(ctx context.Context, u *User, in LoginInput) error {
	secret, err := e.secrets.Open(u.TwoFactor.Secret)
	if err != nil {
		return internalErr("2fa verify", err)
	}

	if in.TOTPCode != "" {
		ok, err := e.totp.VerifyCode(secret, in.TOTPCode, e.now())
		if err != nil {
			return internalErr("2fa verify", err)
		}
		if !ok {
			e.recordFailedAttempt(ctx, u)
			return &AuthenticationError{Cause: ErrTwoFactorInvalid}
		}
		return nil
	}

	ok, remaining := e.totp.VerifyBackupCode(in.BackupCode, u.TwoFactor.BackupCodeHashes)
	if !ok {
		e.recordFailedAttempt(ctx, u)
		return &AuthenticationError{Cause: ErrTwoFactorInvalid}
	}
	u.TwoFactor.BackupCodeHashes = remaining
	return nil
}

// recordFailedAttempt persists the failure count before the caller returns
// its error. Hitting the threshold opens the lockout window and resets the
// counter so the next window starts clean.
func (e *Engine) recordFailedAttempt(ctx context.Context, u *User) {
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= e.cfg.Lockout.Threshold {
		until := e.now().Add(e.cfg.Lockout.Duration)
		u.LockoutUntil = &until
		u.FailedLoginAttempts = 0
	}
	if err := e.users.SaveUser(ctx, u); err != nil {
		e.log.Error("failed to persist login attempt counter", zap.String("user_id", u.ID), zap.Error(err))
	}
}
