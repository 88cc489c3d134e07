package authevents

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/sitereport-core/internal/auth"
)

// PrometheusSink counts session events.
type PrometheusSink struct {
	events  *prometheus.CounterVec
	revoked prometheus.Counter
}

// NewPrometheusSink creates the collectors and registers them with reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitereport",
			Subsystem: "auth",
			Name:      "events_total",
			Help:      "Session lifecycle events by type and failure reason.",
		}, []string{"event", "outcome", "reason"}),
		revoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sitereport",
			Subsystem: "auth",
			Name:      "sessions_revoked_total",
			Help:      "Sessions revoked by logout or revoke-all.",
		}),
	}

	for _, c := range []prometheus.Collector{s.events, s.revoked} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Emit implements auth.EventSink.
func (s *PrometheusSink) Emit(_ context.Context, evt auth.SessionEvent) {
	s.events.WithLabelValues(string(evt.Type), outcome(evt.Type), evt.Reason).Inc()
	if evt.Revoked > 0 {
		s.revoked.Add(float64(evt.Revoked))
	}
}
