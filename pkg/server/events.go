package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jarvis/pkg/inference"
)

const keepAliveInterval = 15 * time.Second

func writeEvent(w http.ResponseWriter, name string, data []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

// handleEvents streams the changes of one conversation as server-sent
// events. Store changes are named "conversation-<kind>", loop events keep
// their event type (tool-call, inference, final, ...). The stream ends when
// the conversation is deleted or the client goes away.
func (s *Server) handleEvents(w ErrorResponseWriter, r *http.Request) {
	id := pathID(r)
	if _, err := s.config.Conversations.Get(id); err != nil {
		w.RespondWithError(err)
		return
	}

	ctx := r.Context()
	changes := s.config.Conversations.Subscribe(ctx, id)
	var msgs <-chan *message.Message
	if s.config.Events != nil {
		var err error
		msgs, err = s.config.Events.Subscribe(ctx, s.config.EventsTopic)
		if err != nil {
			w.RespondWithError(NewInternalServerError("could not subscribe to events", err))
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	logger := log.With().Str("conversation_id", id).Logger()
	logger.Debug().Msg("event stream opened")
	defer logger.Debug().Msg("event stream closed")

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err = fmt.Fprint(w, ": keep-alive\n\n")
		case c, ok := <-changes:
			if !ok {
				return
			}
			var b []byte
			b, err = json.Marshal(c)
			if err == nil {
				err = writeEvent(w, "conversation-"+string(c.Kind), b)
			}
		case msg, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			msg.Ack()
			if msg.Metadata.Get(inference.MetadataConversationID) != id {
				continue
			}
			err = writeEvent(w, msg.Metadata.Get(inference.MetadataEventType), msg.Payload)
		}
		if err != nil {
			logger.Debug().Err(err).Msg("could not write event")
			return
		}
		w.Flush()
	}
}
