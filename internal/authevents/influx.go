package authevents

import (
	"context"

	"github.com/nerrad567/sitereport-core/internal/auth"
	"github.com/nerrad567/sitereport-core/internal/infrastructure/influxdb"
)

// PointWriter is the part of influxdb.Client the sink needs.
type PointWriter interface {
	WriteAuthEvent(p influxdb.AuthEventPoint)
}

// InfluxSink records each event as an auth_events point. Writes are
// batched by the client; Emit never blocks on the network.
type InfluxSink struct {
	w     PointWriter
	appID string
}

// NewInfluxSink creates a sink tagging points with appID.
func NewInfluxSink(w PointWriter, appID string) *InfluxSink {
	return &InfluxSink{w: w, appID: appID}
}

// Emit implements auth.EventSink.
func (s *InfluxSink) Emit(_ context.Context, evt auth.SessionEvent) {
	s.w.WriteAuthEvent(influxdb.AuthEventPoint{
		AppID:   s.appID,
		Event:   string(evt.Type),
		Outcome: outcome(evt.Type),
		Reason:  evt.Reason,
		UserID:  evt.UserID,
		TokenID: evt.TokenID,
		Revoked: evt.Revoked,
		Time:    evt.Time,
	})
}
