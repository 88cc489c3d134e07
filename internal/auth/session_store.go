package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultSessionTTL is the lifetime of refresh tokens and of every session
// store key derived from one.
const DefaultSessionTTL = 7 * 24 * time.Hour

// SessionRecord is one live refresh token.
type SessionRecord struct {
	UserID       string    `json:"user_id"`
	TokenID      string    `json:"token_id"`
	RefreshToken string    `json:"signed_refresh_token"`
	DeviceInfo   string    `json:"device_info"`
	IPAddress    string    `json:"ip_address"`
	CreatedAt    time.Time `json:"created_at"`
	LastUsedAt   time.Time `json:"last_used_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// SessionStore holds live sessions, a per-user index of their token ids and
// a blacklist of revoked token ids. All methods are safe for concurrent
// callers, including callers working on the same user.
//
// I/O failures are returned wrapping ErrStoreUnavailable.
type SessionStore interface {
	// Put upserts rec and adds its token id to the user's index, both
	// expiring after ttl or at rec.ExpiresAt, whichever comes first.
	Put(ctx context.Context, rec SessionRecord, ttl time.Duration) error

	// Get returns the record and whether it exists.
	Get(ctx context.Context, userID, tokenID string) (SessionRecord, bool, error)

	// IsValid is true when the record exists and the id is not blacklisted.
	IsValid(ctx context.Context, userID, tokenID string) (bool, error)

	// Revoke blacklists the id for the record's remaining lifetime, deletes
	// the record and removes the id from the index. It returns false,
	// without error, when the id was already absent or revoked.
	Revoke(ctx context.Context, userID, tokenID string) (bool, error)

	// RevokeAll revokes every id in the user's index and returns how many
	// this call actually revoked.
	RevokeAll(ctx context.Context, userID string) (int, error)

	// List returns the user's live sessions, newest first.
	List(ctx context.Context, userID string) ([]SessionRecord, error)
}

// Redis key layout.
func sessionKey(userID, tokenID string) string {
	return "session:" + userID + ":" + tokenID
}

func userSessionsKey(userID string) string {
	return "user_sessions:" + userID
}

func blacklistKey(userID, tokenID string) string {
	return "blacklist:" + userID + ":" + tokenID
}

// storeError wraps a backend failure in ErrStoreUnavailable.
func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// asStoreError makes sure err matches ErrStoreUnavailable, for stores that
// forget to wrap.
func asStoreError(err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
