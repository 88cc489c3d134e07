package authevents

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nerrad567/sitereport-core/internal/auth"
	"github.com/nerrad567/sitereport-core/internal/infrastructure/mqtt"
)

// anonymousUser stands in for the user segment of the topic when the
// event has no user, such as a failed login for an unknown name.
const anonymousUser = "_anonymous"

// mqttChanSize bounds the publish queue. A QoS 1 publish waits for the
// broker's PUBACK, so events are handed to a writer goroutine and dropped
// when it falls this far behind.
const mqttChanSize = 256

// Publisher is the part of mqtt.Client the sink needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// MQTTSink publishes session events as JSON from a single goroutine.
// Start it with Run.
type MQTTSink struct {
	pub    Publisher
	topics mqtt.Topics
	qos    byte
	logger auth.Logger
	ch     chan auth.SessionEvent
	done   chan struct{}
	once   sync.Once
}

// NewMQTTSink creates a sink publishing under topics at qos.
func NewMQTTSink(pub Publisher, topics mqtt.Topics, qos byte, logger auth.Logger) *MQTTSink {
	return &MQTTSink{
		pub:    pub,
		topics: topics,
		qos:    qos,
		logger: logger,
		ch:     make(chan auth.SessionEvent, mqttChanSize),
		done:   make(chan struct{}),
	}
}

// Emit implements auth.EventSink. It only queues the event; if the queue is
// full the event is dropped and a warning is logged.
func (s *MQTTSink) Emit(_ context.Context, evt auth.SessionEvent) {
	select {
	case s.ch <- evt:
	default:
		s.logger.Warn("mqtt event channel full, dropping event", "event", evt.Type)
	}
}

// Run publishes queued events until ctx is cancelled, then drains what is
// left and returns.
func (s *MQTTSink) Run(ctx context.Context) {
	defer s.once.Do(func() { close(s.done) })

	for {
		select {
		case evt := <-s.ch:
			s.publish(evt)
		case <-ctx.Done():
			for {
				select {
				case evt := <-s.ch:
					s.publish(evt)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run has drained the queue and returned.
func (s *MQTTSink) Done() <-chan struct{} {
	return s.done
}

// publish sends one event. Events are not retained; subscribers that were
// offline missed nothing they cannot recover from the store.
func (s *MQTTSink) publish(evt auth.SessionEvent) {
	if !s.pub.IsConnected() {
		return
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("encoding session event failed", "event", evt.Type, "error", err)
		return
	}

	userID := evt.UserID
	if userID == "" {
		userID = anonymousUser
	}
	topic := s.topics.SessionEvent(userID, string(evt.Type))

	if err := s.pub.Publish(topic, payload, s.qos, false); err != nil {
		s.logger.Warn("publishing session event failed", "topic", topic, "error", err)
	}
}
