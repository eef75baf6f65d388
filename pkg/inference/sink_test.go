package inference

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/jarvis/pkg/events"
)

func TestWatermillSink_PublishesWithMetadata(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer func() { _ = pubsub.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := pubsub.Subscribe(ctx, "agent-test")
	require.NoError(t, err)

	sink := NewWatermillSink(pubsub, "agent-test")
	ev := events.NewFinalEvent(events.NewMetadata("conv-1", "run-1", 2), "done")
	require.NoError(t, sink.PublishEvent(ev))

	select {
	case msg := <-msgs:
		msg.Ack()
		require.Equal(t, "conv-1", msg.Metadata.Get(MetadataConversationID))
		require.Equal(t, "run-1", msg.Metadata.Get(MetadataRunID))
		require.Equal(t, string(events.EventTypeFinal), msg.Metadata.Get(MetadataEventType))

		decoded, err := events.NewEventFromJson(msg.Payload)
		require.NoError(t, err)
		require.Equal(t, events.EventTypeFinal, decoded.Type())
		require.Equal(t, "conv-1", decoded.Metadata().ConversationID)
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

func TestWatermillSink_DefaultTopic(t *testing.T) {
	require.Equal(t, events.DefaultTopic, NewWatermillSink(nil, "").Topic())
}
