package events

import (
	"context"

	"github.com/rs/zerolog/log"
)

// EventSink receives the events of a run: the watermill bus, metrics,
// recorders in tests.
type EventSink interface {
	PublishEvent(event Event) error
}

type sinksKey struct{}

// WithEventSinks returns a context carrying sinks in addition to the ones
// already attached to ctx.
func WithEventSinks(ctx context.Context, sinks ...EventSink) context.Context {
	if len(sinks) == 0 {
		return ctx
	}
	existing := GetEventSinks(ctx)
	combined := make([]EventSink, 0, len(existing)+len(sinks))
	combined = append(combined, existing...)
	combined = append(combined, sinks...)
	return context.WithValue(ctx, sinksKey{}, combined)
}

func GetEventSinks(ctx context.Context) []EventSink {
	sinks, _ := ctx.Value(sinksKey{}).([]EventSink)
	return sinks
}

// PublishEventToContext hands event to every sink of ctx. A failing sink
// is logged and never interrupts the run.
func PublishEventToContext(ctx context.Context, event Event) {
	for _, sink := range GetEventSinks(ctx) {
		if err := sink.PublishEvent(event); err != nil {
			meta := event.Metadata()
			log.Debug().Err(err).
				Str("event_type", string(event.Type())).
				Str("conversation_id", meta.ConversationID).
				Str("run_id", meta.RunID).
				Msg("could not publish event")
		}
	}
}
