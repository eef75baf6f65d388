package session

import (
	"context"

	"github.com/go-go-golems/jarvis/pkg/inference/toolloop"
)

// EngineBuilder builds an inference runner for a conversation.
//
// The builder is responsible for wiring sinks, middleware, the capability
// set and provider engine construction policy.
type EngineBuilder interface {
	Build(ctx context.Context, conversationID string) (InferenceRunner, error)
}

// InferenceRunner performs one blocking agent loop run.
type InferenceRunner interface {
	RunLoop(ctx context.Context, run toolloop.Run, emit toolloop.TurnEmitter) (*toolloop.Outcome, error)
}
