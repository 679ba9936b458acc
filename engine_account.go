package authcore

import (
	"context"
	"strings"
)

// GetUser loads a user record by id. Returns nil without error when the
// user does not exist, matching the store contract.
func (e *Engine) GetUser(ctx context.Context, userID string) (*User, error) {
	u, err := e.users.FindUserByID(ctx, userID)
	if err != nil {
		return nil, internalErr("get user", err)
	}
	return u, nil
}

// UpdateProfile applies the patch's present fields to the user record.
// A display-name change is checked for uniqueness first.
func (e *Engine) UpdateProfile(ctx context.Context, userID string, patch UserPatch) (*User, error) {
	u, err := e.users.FindUserByID(ctx, userID)
	if err != nil {
		return nil, internalErr("update profile", err)
	}
	if u == nil {
		return nil, &AuthenticationError{Cause: ErrInvalidCredentials}
	}

	if patch.DisplayName != nil {
		name := strings.TrimSpace(*patch.DisplayName)
		if name == "" {
			return nil, &ValidationError{Field: "displayName", Reason: "required"}
		}
		if !strings.EqualFold(name, u.DisplayName) {
			existing, err := e.users.FindUserByDisplayName(ctx, name)
			if err != nil {
				return nil, internalErr("update profile", err)
			}
			if existing != nil && existing.ID != u.ID {
				return nil, ErrDisplayNameTaken
			}
		}
		patch.DisplayName = &name
	}

	patch.Apply(u)
	if err := e.users.SaveUser(ctx, u); err != nil {
		return nil, internalErr("update profile", err)
	}
	return u, nil
}
