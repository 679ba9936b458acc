package authcore

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by engine operations. Callers match with
// errors.Is; the typed taxonomy below carries caller-safe messages.
var (
	// ErrInvalidCredentials is returned for every credential failure,
	// whether or not the account exists.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while a lockout window is active.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrTooManyAttempts is returned when a protected operation exceeds
	// its rate-limit window.
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrEmailTaken is returned on registration with a known email.
	ErrEmailTaken = errors.New("email already in use")
	// ErrDisplayNameTaken is returned on registration with a known display name.
	ErrDisplayNameTaken = errors.New("display name already in use")
	// ErrShelterNameTaken is returned when shelter registration collides.
	ErrShelterNameTaken = errors.New("shelter name already in use")
	// ErrSessionInvalid is returned when a refresh token matches no
	// usable session (missing, revoked, expired, or already rotated).
	ErrSessionInvalid = errors.New("invalid or expired session")
	// ErrTokenInvalid is returned by access-token verification failures.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrResetTokenInvalid is returned for unknown or expired reset tokens.
	ErrResetTokenInvalid = errors.New("invalid or expired reset token")
	// ErrVerifyTokenInvalid is returned for unknown or expired verification tokens.
	ErrVerifyTokenInvalid = errors.New("invalid or expired verification token")
	// ErrTwoFactorRequired signals a valid password but a missing second
	// factor during a non-Login call path.
	ErrTwoFactorRequired = errors.New("two-factor code required")
	// ErrTwoFactorInvalid is returned for a wrong TOTP or backup code.
	ErrTwoFactorInvalid = errors.New("invalid two-factor code")
	// ErrTwoFactorAlreadyEnabled rejects setup on an enabled account.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")
	// ErrTwoFactorNotPending rejects confirmation without a pending setup.
	ErrTwoFactorNotPending = errors.New("no pending two-factor setup")
	// ErrEngineNotReady is returned when a required collaborator is missing.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ValidationError reports malformed input. Its message is safe to surface
// to the caller verbatim.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// AuthenticationError wraps a credential or token failure. The message is
// uniform by construction so responses cannot be used for enumeration.
type AuthenticationError struct {
	Cause error
}

func (e *AuthenticationError) Error() string { return "authentication failed" }
func (e *AuthenticationError) Unwrap() error { return e.Cause }

// AuthorizationError reports an authenticated but forbidden request.
// Distinct from AuthenticationError so callers can tell "log in" from
// "you can't do this".
type AuthorizationError struct {
	Capability string
}

func (e *AuthorizationError) Error() string {
	if e.Capability == "" {
		return "forbidden"
	}
	return "forbidden: requires " + e.Capability
}

// LockoutError reports an active login lockout. The message never includes
// the remaining duration.
type LockoutError struct{}

func (e *LockoutError) Error() string { return "account temporarily locked" }
func (e *LockoutError) Is(target error) bool {
	return target == ErrAccountLocked
}

// RateLimitError reports an exhausted rate-limit window for an operation.
type RateLimitError struct {
	Operation string
}

func (e *RateLimitError) Error() string { return "too many attempts" }
func (e *RateLimitError) Is(target error) bool {
	return target == ErrTooManyAttempts
}

// InternalError wraps unexpected failures. The caller-facing message leaks
// nothing; the cause is for server-side logging only.
type InternalError struct {
	Op    string
	Cause error
}

func (e *InternalError) Error() string { return "internal error" }
func (e *InternalError) Unwrap() error { return e.Cause }

func internalErr(op string, cause error) error {
	return &InternalError{Op: op, Cause: cause}
}
