package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"

	"trove/internal/config"
)

// Domain event types.
const (
	EventCollectionCreated = "collection.created"
	EventCollectionDeleted = "collection.deleted"
	EventItemCreated       = "item.created"
	EventTemplateCreated   = "template.created"
	EventTierChanged       = "tier.changed"
)

// Event is the envelope of every domain event.
type Event struct {
	Type       string         `json:"type"`
	UserID     string         `json:"user_id"`
	SubjectID  string         `json:"subject_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// Publisher defines an interface for publishing messages.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, attrs map[string]string) (string, error)
}

// PubSubPublisher is an implementation of Publisher using Google Pub/Sub.
type PubSubPublisher struct {
	client *pubsub.Client
}

// NewPublisher creates a new PubSubPublisher using the GCP project from config.
// The client honors PUBSUB_EMULATOR_HOST.
func NewPublisher(ctx context.Context, cfg *config.Config) (*PubSubPublisher, error) {
	if cfg.GCPProjectID == "" {
		return nil, fmt.Errorf("failed to create Pub/Sub client: GCP project id is empty")
	}
	client, err := pubsub.NewClient(ctx, cfg.GCPProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pub/Sub client: %w", err)
	}
	return &PubSubPublisher{client: client}, nil
}

// Publish sends the payload to the given Pub/Sub topic and returns the message ID.
func (p *PubSubPublisher) Publish(ctx context.Context, topic string, payload []byte, attrs map[string]string) (string, error) {
	t := p.client.Topic(topic)
	result := t.Publish(ctx, &pubsub.Message{Data: payload, Attributes: attrs})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to publish message to topic %s: %w", topic, err)
	}
	return id, nil
}

func (p *PubSubPublisher) Close() error {
	return p.client.Close()
}

// LogPublisher writes events to the log instead of a broker. Used when no
// GCP project is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "LogPublisher").Logger()}
}

func (p *LogPublisher) Publish(ctx context.Context, topic string, payload []byte, attrs map[string]string) (string, error) {
	p.logger.Debug().Str("topic", topic).Str("event_type", attrs["event_type"]).RawJSON("payload", payload).Msg("Event published")
	return "", nil
}

// Emitter publishes domain events to one topic.
type Emitter struct {
	pub    Publisher
	topic  string
	logger zerolog.Logger
}

func NewEmitter(pub Publisher, topic string, logger zerolog.Logger) *Emitter {
	return &Emitter{pub: pub, topic: topic, logger: logger.With().Str("component", "Emitter").Logger()}
}

// Emit publishes ev. Failures are logged and never returned: events are
// notifications, not part of the write.
func (e *Emitter) Emit(ctx context.Context, ev Event) {
	if e == nil || e.pub == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		e.logger.Error().Err(err).Str("event_type", ev.Type).Msg("Failed to marshal event")
		return
	}
	if _, err := e.pub.Publish(ctx, e.topic, payload, map[string]string{"event_type": ev.Type}); err != nil {
		e.logger.Error().Err(err).Str("event_type", ev.Type).Str("user_id", ev.UserID).Msg("Failed to publish event")
	}
}
