// Package events publishes lifecycle notifications about registered
// controllers so downstream consumers (automation engines, audit pipelines)
// can react without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Event names.
const (
	EventEntryRegistered = "entry.registered"
	EventEntryRemoved    = "entry.removed"
)

// EntryEvent is the payload published for entry lifecycle changes.
type EntryEvent struct {
	Event        string    `json:"event"`
	SerialNumber string    `json:"serial_number"`
	DeviceClass  string    `json:"device_class"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Publisher sends entry lifecycle events. Publishing is best effort: the
// registration outcome never depends on it.
type Publisher interface {
	PublishEntryEvent(ctx context.Context, event EntryEvent) error
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishEntryEvent(context.Context, EntryEvent) error { return nil }

// PubSubPublisher publishes entry events to a Google Pub/Sub topic.
type PubSubPublisher struct {
	publisher *pubsub.Publisher
	logger    zerolog.Logger
}

// NewPubSubPublisher creates a publisher for the given topic.
func NewPubSubPublisher(client *pubsub.Client, topic string, logger zerolog.Logger) *PubSubPublisher {
	return &PubSubPublisher{
		publisher: client.Publisher(topic),
		logger:    logger,
	}
}

// PublishEntryEvent publishes the event and waits for the broker ack.
func (p *PubSubPublisher) PublishEntryEvent(ctx context.Context, event EntryEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal entry event: %w", err)
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event": event.Event,
		},
	})

	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publish entry event: %w", err)
	}

	p.logger.Debug().
		Str("message_id", id).
		Str("event", event.Event).
		Str("serial_number", event.SerialNumber).
		Msg("entry event published")

	return nil
}

// Stop flushes pending messages.
func (p *PubSubPublisher) Stop() {
	p.publisher.Stop()
}
