// Package eventlog publishes test session lifecycle events to Kafka so
// downstream consumers (proctoring dashboards, analytics, grading pipelines)
// can observe session state transitions without polling the API.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// EventType names a session lifecycle transition.
type EventType string

const (
	EventSessionStarted  EventType = "session.started"
	EventAttemptStarted  EventType = "attempt.started"
	EventAttemptEnded    EventType = "attempt.ended"
	EventSessionMoved    EventType = "session.moved"
	EventSessionSuspended EventType = "session.suspended"
	EventSessionEnded    EventType = "session.ended"
)

// Event is the wire shape published for every lifecycle transition. Detail
// carries transition-specific data (e.g. the item ref and occurrence an
// attempt was started for); it is intentionally a loose map rather than a
// union type, since consumers decode by Type.
type Event struct {
	Type           EventType              `json:"type"`
	SessionID      string                 `json:"sessionId"`
	TestIdentifier string                 `json:"testIdentifier"`
	OccurredAt     time.Time              `json:"occurredAt"`
	Detail         map[string]interface{} `json:"detail,omitempty"`
}

// Publisher publishes session lifecycle events. Implementations must be
// safe for concurrent use, since the session service calls Publish from
// whichever goroutine is handling the triggering API request.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// KafkaPublisher implements Publisher over a single topic using
// segmentio/kafka-go's Writer, keying each message by SessionID so a
// consumer group partitions by session and observes per-session ordering.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher returns a publisher writing to topic across brokers.
// The writer batches asynchronously up to its default BatchTimeout; callers
// needing a synchronous guarantee should call Close, which flushes pending
// writes.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			RequiredAcks:           kafka.RequireOne,
		},
	}
}

// Publish marshals event as JSON and writes it keyed by SessionID.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("eventlog: marshal %s event: %w", event.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.SessionID),
		Value: payload,
		Time:  event.OccurredAt,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("eventlog: publish %s for session %s: %w", event.Type, event.SessionID, err)
	}

	return nil
}

// Close flushes any buffered messages and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("eventlog: close writer: %w", err)
	}

	return nil
}

// NoopPublisher discards every event. Used when eventlog is disabled (no
// QTISESSION_KAFKA_BROKERS configured), the same nil-is-disabled convention
// middleware.WithRateLimit and middleware.WithAuthClient already use.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                         { return nil }
