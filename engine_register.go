package authcore

import (
	"context"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shelterly/authcore/internal/codec"
)

const (
	opRegister = "register"
	opLogin    = "login"
)

// Register creates an account, provisions the email-verification token, and
// issues a first session. Shelter-operator registration also creates the
// shelter record through the directory collaborator.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*LoginResult, error) {
	email := normalizeEmail(in.Email)
	if err := e.allow(ctx, clientKey(in.IPAddress, email), opRegister); err != nil {
		return nil, err
	}

	if err := validateRegisterInput(email, in); err != nil {
		return nil, err
	}

	if existing, err := e.users.FindUserByEmail(ctx, email); err != nil {
		return nil, internalErr("register", err)
	} else if existing != nil {
		return nil, ErrEmailTaken
	}
	displayName := strings.TrimSpace(in.DisplayName)
	if existing, err := e.users.FindUserByDisplayName(ctx, displayName); err != nil {
		return nil, internalErr("register", err)
	} else if existing != nil {
		return nil, ErrDisplayNameTaken
	}

	var shelterID string
	if in.Role == RoleShelter {
		id, err := e.createShelter(ctx, in.ShelterName)
		if err != nil {
			return nil, err
		}
		shelterID = id
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return nil, internalErr("register", err)
	}

	rawVerify, err := codec.RandomToken(32)
	if err != nil {
		return nil, internalErr("register", err)
	}
	now := e.now()
	verifyExpiry := now.Add(e.cfg.Verify.TokenTTL)

	u := &User{
		ID:                   uuid.NewString(),
		Email:                email,
		DisplayName:          displayName,
		Role:                 in.Role,
		ShelterID:            shelterID,
		PasswordHash:         hash,
		EmailVerifyTokenHash: codec.HashToken(rawVerify),
		EmailVerifyExpiresAt: &verifyExpiry,
		CreatedAt:            now,
	}
	if err := e.users.SaveUser(ctx, u); err != nil {
		return nil, internalErr("register", err)
	}

	// Delivery failures must not fail registration; the token can be resent.
	if err := e.mailer.SendVerificationEmail(ctx, email, rawVerify); err != nil {
		e.log.Warn("verification email delivery failed", zap.String("user_id", u.ID), zap.Error(err))
	}

	result, err := e.issueSession(ctx, u, in.IPAddress, in.UserAgent)
	if err != nil {
		return nil, err
	}
	e.emitAudit(ctx, "register", u.ID, result.SessionID, "", true, nil)
	return result, nil
}

func (e *Engine) createShelter(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Field: "shelterName", Reason: "required for shelter accounts"}
	}
	existing, err := e.shelters.FindShelterByName(ctx, name)
	if err != nil {
		return "", internalErr("register", err)
	}
	if existing != nil {
		return "", ErrShelterNameTaken
	}
	shelter := &Shelter{ID: uuid.NewString(), Name: name, CreatedAt: e.now()}
	if err := e.shelters.CreateShelter(ctx, shelter); err != nil {
		return "", internalErr("register", err)
	}
	return shelter.ID, nil
}

func validateRegisterInput(email string, in RegisterInput) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := validatePassword(in.Password); err != nil {
		return err
	}
	if strings.TrimSpace(in.DisplayName) == "" {
		return &ValidationError{Field: "displayName", Reason: "required"}
	}
	if !in.Role.valid() {
		return &ValidationError{Field: "role", Reason: "unknown role"}
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return &ValidationError{Field: "email", Reason: "required"}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return &ValidationError{Field: "email", Reason: "not a valid address"}
	}
	return nil
}

func validatePassword(pw string) error {
	if len(pw) < 8 {
		return &ValidationError{Field: "password", Reason: "must be at least 8 characters"}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
