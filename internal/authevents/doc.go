// Package authevents fans session lifecycle events from the auth service
// out to the rest of the platform.
//
// Sinks:
//   - MQTTSink publishes each event to {prefix}/auth/sessions/{user}/{event}
//     so other services can drop cached state for a revoked session;
//     publishing happens on its own goroutine behind a bounded queue
//   - InfluxSink writes auth_events points for dashboards
//   - PrometheusSink counts events for /metrics
//   - AuditSink persists the audit trail through a bounded queue
//
// Every sink is best-effort. A failing sink logs and moves on; it never
// fails or slows the login, refresh or logout that produced the event.
package authevents
