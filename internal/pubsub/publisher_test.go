package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	ps "cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trove/internal/config"
)

type recordingPublisher struct {
	topic   string
	payload []byte
	attrs   map[string]string
	err     error
}

func (r *recordingPublisher) Publish(ctx context.Context, topic string, payload []byte, attrs map[string]string) (string, error) {
	r.topic, r.payload, r.attrs = topic, payload, attrs
	return "1", r.err
}

func TestNewPublisherInvalidProject(t *testing.T) {
	cfg := &config.Config{GCPProjectID: ""}
	_, err := NewPublisher(context.Background(), cfg)
	assert.Error(t, err)
}

func TestEmitterEnvelope(t *testing.T) {
	rec := &recordingPublisher{}
	e := NewEmitter(rec, "trove-events", zerolog.Nop())

	e.Emit(context.Background(), Event{Type: EventItemCreated, UserID: "u1", SubjectID: "i1"})

	assert.Equal(t, "trove-events", rec.topic)
	assert.Equal(t, EventItemCreated, rec.attrs["event_type"])

	var got Event
	require.NoError(t, json.Unmarshal(rec.payload, &got))
	assert.Equal(t, "u1", got.UserID)
	assert.False(t, got.OccurredAt.IsZero())
}

func TestEmitterSwallowsErrors(t *testing.T) {
	rec := &recordingPublisher{err: errors.New("broker down")}
	e := NewEmitter(rec, "t", zerolog.Nop())
	e.Emit(context.Background(), Event{Type: EventTierChanged})

	var nilEmitter *Emitter
	nilEmitter.Emit(context.Background(), Event{Type: EventTierChanged})
}

func TestPublishWithEmulator(t *testing.T) {
	if os.Getenv("PUBSUB_EMULATOR_HOST") == "" {
		t.Skip("PUBSUB_EMULATOR_HOST is not set, skip emulator integration test")
	}

	ctx := context.Background()
	pub, err := NewPublisher(ctx, &config.Config{GCPProjectID: "test-project"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	topicName := "test-topic-" + time.Now().Format("150405.000")
	topic, err := pub.client.CreateTopic(ctx, topicName)
	require.NoError(t, err)
	sub, err := pub.client.CreateSubscription(ctx, topicName+"-sub", ps.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	msgID, err := pub.Publish(ctx, topicName, []byte("hello-emulator"), map[string]string{"event_type": "test"})
	require.NoError(t, err)
	assert.NotEmpty(t, msgID)

	recvCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c := make(chan *ps.Message, 1)
	go func() {
		_ = sub.Receive(recvCtx, func(ctx context.Context, m *ps.Message) {
			c <- m
			m.Ack()
			cancel()
		})
	}()

	select {
	case m := <-c:
		assert.Equal(t, "hello-emulator", string(m.Data))
		assert.Equal(t, "test", m.Attributes["event_type"])
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message from emulator subscription")
	}
}
