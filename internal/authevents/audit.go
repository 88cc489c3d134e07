package authevents

import (
	"context"
	"sync"

	"github.com/nerrad567/sitereport-core/internal/audit"
	"github.com/nerrad567/sitereport-core/internal/auth"
)

// auditChanSize is the buffer size for the async audit log channel.
// Entries beyond this are dropped (best-effort) to avoid back-pressure on requests.
const auditChanSize = 256

// AuditSink writes events to the audit log from a single goroutine, which
// suits SQLite's serial write model. Start it with Run.
type AuditSink struct {
	repo   audit.Repository
	ch     chan *audit.AuditLog
	logger auth.Logger
	done   chan struct{}
	once   sync.Once
}

// NewAuditSink creates a sink over repo.
func NewAuditSink(repo audit.Repository, logger auth.Logger) *AuditSink {
	return &AuditSink{
		repo:   repo,
		ch:     make(chan *audit.AuditLog, auditChanSize),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Emit implements auth.EventSink. If the queue is full the entry is
// dropped and a warning is logged.
func (s *AuditSink) Emit(_ context.Context, evt auth.SessionEvent) {
	entry := &audit.AuditLog{
		Action:     string(evt.Type),
		EntityType: audit.EntitySession,
		EntityID:   evt.TokenID,
		UserID:     evt.UserID,
		Source:     evt.Source,
		Details:    details(evt),
		CreatedAt:  evt.Time,
	}
	if entry.Source == "" {
		entry.Source = "api"
	}

	select {
	case s.ch <- entry:
	default:
		s.logger.Warn("audit log channel full, dropping entry", "action", entry.Action)
	}
}

func details(evt auth.SessionEvent) map[string]any {
	d := map[string]any{}
	if evt.Username != "" {
		d["username"] = evt.Username
	}
	if evt.Reason != "" {
		d["reason"] = evt.Reason
	}
	if evt.Revoked > 0 {
		d["revoked"] = evt.Revoked
	}
	if len(d) == 0 {
		return nil
	}
	return d
}

// Run writes queued entries until ctx is cancelled, then drains what is
// left and returns.
func (s *AuditSink) Run(ctx context.Context) {
	defer s.once.Do(func() { close(s.done) })

	for {
		select {
		case entry := <-s.ch:
			s.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-s.ch:
					s.write(entry)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run has drained the queue and returned.
func (s *AuditSink) Done() <-chan struct{} {
	return s.done
}

func (s *AuditSink) write(entry *audit.AuditLog) {
	// The request that produced the entry may already be gone.
	if err := s.repo.Create(context.Background(), entry); err != nil {
		s.logger.Error("audit log write failed", "action", entry.Action, "error", err)
	}
}
