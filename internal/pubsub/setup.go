package pubsub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// SetupOptions describe the local event topology.
type SetupOptions struct {
	ProjectID    string
	EmulatorHost string
	Topic        string
	Retention    time.Duration
	// Reset deletes every topic and subscription first. Emulator only.
	Reset bool
}

// SubscriptionID is the pull subscription created for a topic.
func SubscriptionID(topic string) string {
	return topic + "-sub"
}

// DeadLetterTopicID is the topic undeliverable events are forwarded to.
func DeadLetterTopicID(topic string) string {
	return topic + "-dlq"
}

// SetupLocal creates the events topic, its dead-letter topic and a pull
// subscription on the Pub/Sub emulator.
func SetupLocal(ctx context.Context, opts SetupOptions, logger zerolog.Logger) error {
	if opts.ProjectID == "" {
		return errors.New("GCP_PROJECT_ID is not set")
	}
	if opts.EmulatorHost == "" {
		return errors.New("PUBSUB_EMULATOR_HOST must be set for local setup")
	}
	if opts.Retention == 0 {
		opts.Retention = 7 * 24 * time.Hour
	}

	client, err := pubsub.NewClient(ctx, opts.ProjectID,
		option.WithEndpoint(opts.EmulatorHost),
		option.WithoutAuthentication(),
	)
	if err != nil {
		return fmt.Errorf("failed to create Pub/Sub client: %w", err)
	}
	defer client.Close()

	if opts.Reset {
		if err := resetEmulator(ctx, client, logger); err != nil {
			return err
		}
	}

	dlq, err := ensureTopic(ctx, client, logger, DeadLetterTopicID(opts.Topic), opts.Retention)
	if err != nil {
		return err
	}
	topic, err := ensureTopic(ctx, client, logger, opts.Topic, opts.Retention)
	if err != nil {
		return err
	}
	return ensureSubscription(ctx, client, logger, SubscriptionID(opts.Topic), pubsub.SubscriptionConfig{
		Topic:            topic,
		AckDeadline:      60 * time.Second,
		ExpirationPolicy: 31 * 24 * time.Hour,
		RetryPolicy: &pubsub.RetryPolicy{
			MinimumBackoff: 10 * time.Second,
			MaximumBackoff: 600 * time.Second,
		},
		DeadLetterPolicy: &pubsub.DeadLetterPolicy{
			DeadLetterTopic:     dlq.String(),
			MaxDeliveryAttempts: 5,
		},
	})
}

func resetEmulator(ctx context.Context, client *pubsub.Client, logger zerolog.Logger) error {
	subs := client.Subscriptions(ctx)
	for {
		sub, err := subs.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to list subscriptions: %w", err)
		}
		logger.Info().Str("subscription", sub.ID()).Msg("Deleting subscription")
		if err := sub.Delete(ctx); err != nil {
			logger.Warn().Err(err).Str("subscription", sub.ID()).Msg("Failed to delete subscription")
		}
	}

	topics := client.Topics(ctx)
	for {
		t, err := topics.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to list topics: %w", err)
		}
		logger.Info().Str("topic", t.ID()).Msg("Deleting topic")
		if err := t.Delete(ctx); err != nil {
			logger.Warn().Err(err).Str("topic", t.ID()).Msg("Failed to delete topic")
		}
	}
	return nil
}

func ensureTopic(ctx context.Context, client *pubsub.Client, logger zerolog.Logger, topicID string, retention time.Duration) (*pubsub.Topic, error) {
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check topic %s: %w", topicID, err)
	}
	if !exists {
		logger.Info().Str("topic", topicID).Dur("retention", retention).Msg("Creating topic")
		return client.CreateTopicWithConfig(ctx, topicID, &pubsub.TopicConfig{RetentionDuration: retention})
	}

	cfg, err := topic.Config(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get config for topic %s: %w", topicID, err)
	}
	if cfg.RetentionDuration != retention {
		logger.Warn().Str("topic", topicID).Msgf("Mismatched retention: expected %v, found %v", retention, cfg.RetentionDuration)
	}
	return topic, nil
}

func ensureSubscription(ctx context.Context, client *pubsub.Client, logger zerolog.Logger, subID string, cfg pubsub.SubscriptionConfig) error {
	sub := client.Subscription(subID)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check subscription %s: %w", subID, err)
	}
	if !exists {
		logger.Info().Str("subscription", subID).Msg("Creating subscription")
		if _, err := client.CreateSubscription(ctx, subID, cfg); err != nil {
			return fmt.Errorf("failed to create subscription %s: %w", subID, err)
		}
		return nil
	}

	existing, err := sub.Config(ctx)
	if err != nil {
		return fmt.Errorf("failed to get config for subscription %s: %w", subID, err)
	}
	if existing.AckDeadline == cfg.AckDeadline && sameRetry(existing.RetryPolicy, cfg.RetryPolicy) {
		logger.Info().Str("subscription", subID).Msg("Subscription is up to date")
		return nil
	}
	logger.Info().Str("subscription", subID).Msg("Updating subscription")
	_, err = sub.Update(ctx, pubsub.SubscriptionConfigToUpdate{
		AckDeadline: cfg.AckDeadline,
		RetryPolicy: cfg.RetryPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to update subscription %s: %w", subID, err)
	}
	return nil
}

func sameRetry(a, b *pubsub.RetryPolicy) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.MinimumBackoff == b.MinimumBackoff && a.MaximumBackoff == b.MaximumBackoff
}
