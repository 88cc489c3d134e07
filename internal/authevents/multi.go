package authevents

import (
	"context"

	"github.com/nerrad567/sitereport-core/internal/auth"
)

// Multi delivers each event to every sink in order. Nil sinks are skipped.
type Multi []auth.EventSink

// Emit implements auth.EventSink.
func (m Multi) Emit(ctx context.Context, evt auth.SessionEvent) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, evt)
		}
	}
}

// outcome classifies an event type for tagging.
func outcome(t auth.EventType) string {
	switch t {
	case auth.EventLoginFailed, auth.EventRefreshRejected:
		return "failure"
	default:
		return "success"
	}
}
