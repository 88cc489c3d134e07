package auth

import (
	"context"
	"errors"
	"time"
)

// EventType names a session lifecycle event.
type EventType string

const (
	EventLogin           EventType = "login"
	EventLoginFailed     EventType = "login_failed"
	EventRefresh         EventType = "refresh"
	EventRefreshRejected EventType = "refresh_rejected"
	EventLogout          EventType = "logout"
	EventRevokeAll       EventType = "revoke_all"
)

// SessionEvent describes one completed auth operation. It never carries a
// token or password.
type SessionEvent struct {
	Type     EventType `json:"type"`
	UserID   string    `json:"user_id,omitempty"`
	Username string    `json:"username,omitempty"`
	TokenID  string    `json:"token_id,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Revoked  int       `json:"revoked,omitempty"`
	Source   string    `json:"source,omitempty"`
	Time     time.Time `json:"time"`
}

// EventSink receives session events. Emit is best-effort: it must not
// block for long and its failures never reach the auth caller.
type EventSink interface {
	Emit(ctx context.Context, evt SessionEvent)
}

// NopSink discards events.
type NopSink struct{}

// Emit implements EventSink.
func (NopSink) Emit(context.Context, SessionEvent) {}

// Reasons attached to failure events.
const (
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonAccountDisabled    = "account_disabled"
	ReasonInvalidToken       = "invalid_token"
	ReasonRevoked            = "revoked"
	ReasonStoreUnavailable   = "store_unavailable"
	ReasonError              = "error"
)

// ReasonFor maps an auth error to its event reason.
func ReasonFor(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return ReasonInvalidCredentials
	case errors.Is(err, ErrAccountDisabled):
		return ReasonAccountDisabled
	case errors.Is(err, ErrInvalidToken):
		return ReasonInvalidToken
	case errors.Is(err, ErrTokenRevoked):
		return ReasonRevoked
	case errors.Is(err, ErrStoreUnavailable):
		return ReasonStoreUnavailable
	default:
		return ReasonError
	}
}
