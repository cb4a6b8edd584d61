package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/healthassist/internal/model"
)

const (
	// StreamName is the name of the chat events stream.
	StreamName = "CHAT_EVENTS"

	// SubjectPrefix is the prefix for all chat event subjects.
	SubjectPrefix = "chat"

	// DefaultPublishTimeout bounds the wait for a stream ack.
	DefaultPublishTimeout = 2 * time.Second
)

// publisher is the slice of jetstream.JetStream the event publisher needs.
type publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// EventPublisher writes conversation events to JetStream.
type EventPublisher struct {
	js      publisher
	timeout time.Duration
}

// NewEventPublisher creates a publisher over the client's JetStream context.
// Each publish waits at most timeout for the ack; zero uses
// DefaultPublishTimeout.
func NewEventPublisher(client *Client, timeout time.Duration) *EventPublisher {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &EventPublisher{js: client.JetStream(), timeout: timeout}
}

// EnsureStream creates the events stream if it does not exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Duplicates:  2 * time.Minute,
		Description: "Conversation activity events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject for an event, e.g.
// chat.<conversation id>.message.appended.
func EventSubject(conversationID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, conversationID, eventType)
}

// PublishEvent publishes an event and waits for the stream ack. The event ID
// doubles as the JetStream message ID so retried publishes are deduplicated.
func (p *EventPublisher) PublishEvent(ctx context.Context, event *model.ConversationEvent) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var opts []jetstream.PublishOpt
	if event.ID != "" {
		opts = append(opts, jetstream.WithMsgID(event.ID))
	}

	if _, err := p.js.Publish(ctx, EventSubject(event.ConversationID, event.Type), data, opts...); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
