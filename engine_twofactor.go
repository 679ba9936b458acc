package authcore

import (
	"context"
)

const opVerifyTwoFactor = "verifyTwoFactor"

// BeginTwoFactorSetup provisions a TOTP secret and backup codes for a user
// with no active second factor. The secret lands encrypted in the pending
// slot and is not enforced until ConfirmTwoFactorSetup proves the user's
// authenticator produces matching codes. The plaintext secret, provisioning
// URI, and backup codes are returned exactly once.
func (e *Engine) BeginTwoFactorSetup(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	u, err := e.users.FindUserByID(ctx, userID)
	if err != nil {
		return nil, internalErr("2fa setup", err)
	}
	if u == nil {
		return nil, &AuthenticationError{Cause: ErrInvalidCredentials}
	}
	if u.TwoFactor.Enabled() {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	secret, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, internalErr("2fa setup", err)
	}
	codes, hashes, err := e.totp.GenerateBackupCodes(e.cfg.TOTP.BackupCodeCount)
	if err != nil {
		return nil, internalErr("2fa setup", err)
	}
	sealed, err := e.secrets.Seal(secret)
	if err != nil {
		return nil, internalErr("2fa setup", err)
	}

	u.TwoFactor = TwoFactorState{
		Mode:             TwoFactorPending,
		Secret:           sealed,
		BackupCodeHashes: hashes,
	}
	if err := e.users.SaveUser(ctx, u); err != nil {
		return nil, internalErr("2fa setup", err)
	}

	return &TwoFactorSetup{
		Secret:          secret,
		ProvisioningURI: e.totp.ProvisionURI(secret, u.Email),
		BackupCodes:     codes,
	}, nil
}

// ConfirmTwoFactorSetup verifies a code against the pending secret and
// promotes it to active, from which point login enforces the second factor.
func (e *Engine) ConfirmTwoFactorSetup(ctx context.Context, userID, code string) error {
	if err := e.allow(ctx, userID, opVerifyTwoFactor); err != nil {
		return err
	}

	u, err := e.users.FindUserByID(ctx, userID)
	if err != nil {
		return internalErr("2fa confirm", err)
	}
	if u == nil {
		return &AuthenticationError{Cause: ErrInvalidCredentials}
	}
	if u.TwoFactor.Mode != TwoFactorPending {
		return ErrTwoFactorNotPending
	}

	secret, err := e.secrets.Open(u.TwoFactor.Secret)
	if err != nil {
		return internalErr("2fa confirm", err)
	}
	ok, err := e.totp.VerifyCode(secret, code, e.now())
	if err != nil {
		return internalErr("2fa confirm", err)
	}
	if !ok {
		return &AuthenticationError{Cause: ErrTwoFactorInvalid}
	}

	u.TwoFactor.Mode = TwoFactorActive
	if err := e.users.SaveUser(ctx, u); err != nil {
		return internalErr("2fa confirm", err)
	}

	e.emitAudit(ctx, "2fa_enabled", u.ID, "", "", true, nil)
	return nil
}

// DisableTwoFactor removes the second factor after re-verifying the
// password. Pending setups can be abandoned the same way. All 2FA state is
// wiped, backup codes included.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID, currentPassword string) error {
	u, err := e.users.FindUserByID(ctx, userID)
	if err != nil {
		return internalErr("2fa disable", err)
	}
	if u == nil {
		return &AuthenticationError{Cause: ErrInvalidCredentials}
	}

	ok, err := e.hasher.Verify(currentPassword, u.PasswordHash)
	if err != nil {
		return internalErr("2fa disable", err)
	}
	if !ok {
		e.emitAudit(ctx, "2fa_disabled", u.ID, "", "", false, ErrInvalidCredentials)
		return &AuthenticationError{Cause: ErrInvalidCredentials}
	}

	u.TwoFactor = TwoFactorState{}
	if err := e.users.SaveUser(ctx, u); err != nil {
		return internalErr("2fa disable", err)
	}

	e.emitAudit(ctx, "2fa_disabled", u.ID, "", "", true, nil)
	return nil
}

// RegenerateBackupCodes replaces the outstanding backup codes of an active
// second factor. Old codes stop working immediately; the new plaintext codes
// are returned exactly once.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, currentPassword string) ([]string, error) {
	u, err := e.users.FindUserByID(ctx, userID)
	if err != nil {
		return nil, internalErr("backup codes", err)
	}
	if u == nil {
		return nil, &AuthenticationError{Cause: ErrInvalidCredentials}
	}
	if !u.TwoFactor.Enabled() {
		return nil, ErrTwoFactorNotPending
	}

	ok, err := e.hasher.Verify(currentPassword, u.PasswordHash)
	if err != nil {
		return nil, internalErr("backup codes", err)
	}
	if !ok {
		return nil, &AuthenticationError{Cause: ErrInvalidCredentials}
	}

	codes, hashes, err := e.totp.GenerateBackupCodes(e.cfg.TOTP.BackupCodeCount)
	if err != nil {
		return nil, internalErr("backup codes", err)
	}
	u.TwoFactor.BackupCodeHashes = hashes
	if err := e.users.SaveUser(ctx, u); err != nil {
		return nil, internalErr("backup codes", err)
	}

	e.emitAudit(ctx, "backup_codes_regenerated", u.ID, "", "", true, nil)
	return codes, nil
}
