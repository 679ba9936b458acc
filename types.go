package authcore

import (
	"context"
	"time"
)

// Role is the coarse identity role carried in access-token claims.
type Role string

const (
	// RoleEndUser is a regular adopter account.
	RoleEndUser Role = "endUser"
	// RoleShelter is a shelter-operator account affiliated with a shelter.
	RoleShelter Role = "shelter"
	// RoleAdmin has unrestricted access to every capability check.
	RoleAdmin Role = "admin"
)

func (r Role) valid() bool {
	switch r {
	case RoleEndUser, RoleShelter, RoleAdmin:
		return true
	}
	return false
}

// TwoFactorMode is the lifecycle tag of a user's second-factor state.
// The single-secret union makes the invalid "temp and confirmed secret
// both set" state unrepresentable.
type TwoFactorMode uint8

const (
	// TwoFactorOff means no second factor is configured.
	TwoFactorOff TwoFactorMode = iota
	// TwoFactorPending means a secret was provisioned but not yet
	// confirmed with a valid code. Secret holds the encrypted temp secret.
	TwoFactorPending
	// TwoFactorActive means the second factor is confirmed and enforced
	// at login. Secret holds the encrypted confirmed secret.
	TwoFactorActive
)

// TwoFactorState carries the encrypted TOTP secret for the current mode and
// the outstanding backup-code hashes. BackupCodeHashes shrinks by one each
// time a backup code is consumed.
type TwoFactorState struct {
	Mode             TwoFactorMode
	Secret           string
	BackupCodeHashes []string
}

// Enabled reports whether the second factor is confirmed and enforced.
func (s TwoFactorState) Enabled() bool { return s.Mode == TwoFactorActive }

// User is the credential record owned by this core. Persisted through the
// UserStore collaborator; never hard-deleted here.
type User struct {
	ID          string
	Email       string // normalized lower-case, unique
	DisplayName string
	Role        Role
	ShelterID   string // set for shelter-operator accounts

	PasswordHash string

	FailedLoginAttempts int
	LockoutUntil        *time.Time

	EmailVerified          bool
	EmailVerifyTokenHash   string
	EmailVerifyExpiresAt   *time.Time
	PasswordResetTokenHash string
	PasswordResetExpiresAt *time.Time

	TwoFactor TwoFactorState

	CreatedAt   time.Time
	LastLoginAt *time.Time
}

// UserPatch applies optional profile fields explicitly. Nil pointers leave
// the stored value untouched; there is no dynamic field spreading.
type UserPatch struct {
	DisplayName *string
	ShelterID   *string
}

// Apply copies the present fields onto u.
func (p UserPatch) Apply(u *User) {
	if p.DisplayName != nil {
		u.DisplayName = *p.DisplayName
	}
	if p.ShelterID != nil {
		u.ShelterID = *p.ShelterID
	}
}

// UserStore is the persistence contract for user credential records.
// Lookups are exact matches on indexed fields; email is normalized
// lower-case before the call.
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)
	FindUserByDisplayName(ctx context.Context, name string) (*User, error)
	FindUserByResetTokenHash(ctx context.Context, hash string) (*User, error)
	FindUserByVerifyTokenHash(ctx context.Context, hash string) (*User, error)
	SaveUser(ctx context.Context, u *User) error
}

// Shelter is the minimal shelter record this core creates during
// shelter-operator registration.
type Shelter struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// ShelterDirectory is the collaborator contract for shelter records and the
// staff-membership fallback used by authorization checks.
type ShelterDirectory interface {
	FindShelterByName(ctx context.Context, name string) (*Shelter, error)
	CreateShelter(ctx context.Context, s *Shelter) error
	IsShelterStaff(ctx context.Context, shelterID, userID string) (bool, error)
}

// Mailer delivers out-of-band tokens. Calls are fire-and-forget from the
// engine's perspective; the implementation logs its own delivery failures
// and must not fail the originating auth operation.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, email, rawToken string) error
	SendPasswordResetEmail(ctx context.Context, email, rawToken string) error
}

// Identity is the authenticated principal derived from a verified access
// token. SessionID is "stateless" when no revocable session backs the token.
type Identity struct {
	UserID    string
	Role      Role
	ShelterID string
	SessionID string
}

// StatelessSessionID marks access tokens with no underlying session.
// Such tokens cannot be revoked before expiry.
const StatelessSessionID = "stateless"

// RegisterInput is the input shape for Engine.Register.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	Role        Role
	ShelterName string // required when Role is RoleShelter
	IPAddress   string
	UserAgent   string
}

// LoginInput is the input shape for Engine.Login. TOTPCode and BackupCode
// are the optional second factor; TOTPCode wins when both are present.
type LoginInput struct {
	Email      string
	Password   string
	TOTPCode   string
	BackupCode string
	IPAddress  string
	UserAgent  string
}

// LoginResult is returned by Login and Refresh. RequiresTwoFactor true with
// empty tokens is the deliberate two-step login outcome, not an error.
type LoginResult struct {
	UserID            string
	AccessToken       string
	RefreshToken      string
	SessionID         string
	RequiresTwoFactor bool
}

// TwoFactorSetup is returned by BeginTwoFactorSetup. BackupCodes are the
// plaintext one-time codes; only their hashes are stored.
type TwoFactorSetup struct {
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}
