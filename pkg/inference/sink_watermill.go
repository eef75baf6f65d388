package inference

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jarvis/pkg/events"
)

// Message metadata keys set by WatermillSink. Subscribers use them to filter
// a shared topic down to one conversation without decoding the payload.
const (
	MetadataConversationID = "conversation_id"
	MetadataRunID          = "run_id"
	MetadataEventType      = "event_type"
)

// WatermillSink publishes events to a watermill Publisher so that several
// subscribers (SSE streams, metrics, printers) can consume them.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	if topic == "" {
		topic = events.DefaultTopic
	}
	return &WatermillSink{
		publisher: publisher,
		topic:     topic,
	}
}

func (w *WatermillSink) Topic() string {
	return w.topic
}

// PublishEvent serializes the event to JSON and publishes it on the topic.
func (w *WatermillSink) PublishEvent(event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal event to JSON")
		return errors.Wrap(err, "marshal event")
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	meta := event.Metadata()
	msg.Metadata.Set(MetadataConversationID, meta.ConversationID)
	msg.Metadata.Set(MetadataRunID, meta.RunID)
	msg.Metadata.Set(MetadataEventType, string(event.Type()))

	if err := w.publisher.Publish(w.topic, msg); err != nil {
		log.Error().Err(err).Str("topic", w.topic).Msg("Failed to publish event to watermill")
		return errors.Wrapf(err, "publish to %s", w.topic)
	}

	log.Trace().Str("topic", w.topic).Str("event_type", string(event.Type())).Msg("Published event to watermill")
	return nil
}

var _ events.EventSink = (*WatermillSink)(nil)
