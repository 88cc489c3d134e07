package auth

import (
	"context"
	"errors"
	"fmt"
)

// UserDirectory looks up user accounts.
// Implementations return ErrUserNotFound for a missing user.
type UserDirectory interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
}

// CredentialVerifier checks a username/password pair against the user
// directory. It has no side effects.
type CredentialVerifier struct {
	users UserDirectory
}

// NewCredentialVerifier creates a verifier over users.
func NewCredentialVerifier(users UserDirectory) *CredentialVerifier {
	return &CredentialVerifier{users: users}
}

// Verify returns the user when the credentials are correct.
//
// An unknown username and a wrong password both return exactly
// ErrInvalidCredentials, and both pay for one password hash comparison.
// A disabled account returns ErrAccountDisabled whether or not the
// password was right.
func (v *CredentialVerifier) Verify(ctx context.Context, username, password string) (*User, error) {
	user, err := v.users.GetByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		_, _ = VerifyPassword(password, dummyHash()) //nolint:errcheck // timing only
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	ok, err := VerifyPassword(password, user.PasswordHash)

	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
