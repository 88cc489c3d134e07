package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// LogoutResult reports what a logout did. Success is false when the named
// session was already gone.
type LogoutResult struct {
	Success bool `json:"success"`
	Revoked int  `json:"revoked"`
}

// RotationEngine validates refresh tokens, rotates them single-use and
// revokes sessions.
type RotationEngine struct {
	signer   *Signer
	store    SessionStore
	users    UserDirectory
	resolver *PermissionResolver
	issuer   *Issuer
}

// NewRotationEngine wires the engine to the issuer it re-runs on refresh.
func NewRotationEngine(signer *Signer, store SessionStore, users UserDirectory, resolver *PermissionResolver, issuer *Issuer) *RotationEngine {
	return &RotationEngine{
		signer:   signer,
		store:    store,
		users:    users,
		resolver: resolver,
		issuer:   issuer,
	}
}

// Refresh exchanges a refresh token for a new pair. The old token is
// revoked before the new pair is signed, so of two concurrent calls with
// the same token exactly one succeeds and the other gets ErrTokenRevoked.
//
// Claims are rebuilt from the current role graph. Device info from the
// old session is kept unless client supplies its own.
func (e *RotationEngine) Refresh(ctx context.Context, refreshToken string, client ClientInfo) (*TokenPair, error) {
	claims, err := e.signer.Parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	userID, tokenID := claims.UserID, claims.TokenID()

	valid, err := e.store.IsValid(ctx, userID, tokenID)
	if err != nil {
		return nil, asStoreError(err)
	}
	if !valid {
		return nil, ErrTokenRevoked
	}

	old, found, err := e.store.Get(ctx, userID, tokenID)
	if err != nil {
		return nil, asStoreError(err)
	}

	revoked, err := e.store.Revoke(ctx, userID, tokenID)
	if err != nil {
		return nil, asStoreError(err)
	}
	if !revoked {
		return nil, ErrTokenRevoked
	}

	user, err := e.users.GetByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("%w: user no longer exists", ErrInvalidToken)
	}
	if err != nil {
		return nil, fmt.Errorf("reloading user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	var sessionStart time.Time
	if found {
		sessionStart = old.CreatedAt
		if client.DeviceInfo == "" {
			client.DeviceInfo = old.DeviceInfo
		}
		if client.IPAddress == "" {
			client.IPAddress = old.IPAddress
		}
	}

	res := e.resolver.Resolve(ctx, user)
	return e.issuer.issue(ctx, user, res, client, sessionStart)
}

// Logout revokes the caller's sessions. With logoutAll every session of
// userID is revoked; otherwise only the one named by refreshToken, which
// must belong to userID. An expired refresh token can still be logged out.
//
// With neither, ErrLogoutMisuse is returned and the store is not touched.
func (e *RotationEngine) Logout(ctx context.Context, userID, refreshToken string, logoutAll bool) (LogoutResult, error) {
	if logoutAll {
		n, err := e.RevokeAll(ctx, userID)
		if err != nil {
			return LogoutResult{}, err
		}
		return LogoutResult{Success: true, Revoked: n}, nil
	}
	if refreshToken == "" {
		return LogoutResult{}, ErrLogoutMisuse
	}

	claims, err := e.signer.ParseAllowExpired(refreshToken, TokenTypeRefresh)
	if err != nil {
		return LogoutResult{}, err
	}
	if claims.UserID != userID {
		return LogoutResult{}, fmt.Errorf("%w: token belongs to another user", ErrInvalidToken)
	}

	revoked, err := e.store.Revoke(ctx, userID, claims.TokenID())
	if err != nil {
		return LogoutResult{}, asStoreError(err)
	}
	if !revoked {
		return LogoutResult{}, nil
	}
	return LogoutResult{Success: true, Revoked: 1}, nil
}

// RevokeAll revokes every live session of userID and returns how many this
// call revoked.
func (e *RotationEngine) RevokeAll(ctx context.Context, userID string) (int, error) {
	n, err := e.store.RevokeAll(ctx, userID)
	if err != nil {
		return 0, asStoreError(err)
	}
	return n, nil
}
