package enginebuilder

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jarvis/pkg/events"
	"github.com/go-go-golems/jarvis/pkg/inference/engine"
	"github.com/go-go-golems/jarvis/pkg/inference/middleware"
	"github.com/go-go-golems/jarvis/pkg/inference/session"
	"github.com/go-go-golems/jarvis/pkg/inference/toolloop"
)

var (
	ErrBuilderNil         = errors.New("engine builder is nil")
	ErrBuilderBaseNil     = errors.New("engine builder base engine is nil")
	ErrBuilderExecutorNil = errors.New("engine builder capability executor is nil")
)

// OutcomePersister is invoked after every run that was not aborted.
type OutcomePersister interface {
	PersistOutcome(ctx context.Context, conversationID string, out *toolloop.Outcome) error
}

// Builder builds a runner that:
// - wraps a base engine with middleware
// - injects sinks and the transition hook via context
// - runs the agent loop over the capability executor
// - best-effort persists the outcome
type Builder struct {
	// Base is the provider engine implementation (Gemini/OpenAI).
	Base engine.Engine

	// Middlewares are applied in-order around Base.
	Middlewares []middleware.Middleware

	// Executor runs the capabilities the model asks for.
	Executor toolloop.Executor

	// LoopConfig configures loop orchestration (e.g. MaxIterations).
	LoopConfig *toolloop.LoopConfig

	// EventSinks are attached to the run context for streaming/logging.
	EventSinks []events.EventSink

	// TransitionHook observes loop state transitions.
	TransitionHook toolloop.TransitionHook

	Persister OutcomePersister
}

var _ session.EngineBuilder = (*Builder)(nil)

func (b *Builder) Build(ctx context.Context, conversationID string) (session.InferenceRunner, error) {
	if b == nil {
		return nil, ErrBuilderNil
	}
	if b.Base == nil {
		return nil, ErrBuilderBaseNil
	}
	if b.Executor == nil {
		return nil, ErrBuilderExecutorNil
	}

	eng := b.Base
	if len(b.Middlewares) > 0 {
		eng = middleware.NewEngineWithMiddleware(eng, b.Middlewares...)
	}

	loopCfg := toolloop.DefaultLoopConfig()
	if b.LoopConfig != nil {
		loopCfg = *b.LoopConfig
	}

	return &runner{
		conversationID: conversationID,
		loop: toolloop.New(
			toolloop.WithEngine(eng),
			toolloop.WithExecutor(b.Executor),
			toolloop.WithLoopConfig(loopCfg),
		),
		eventSinks:     b.EventSinks,
		transitionHook: b.TransitionHook,
		persister:      b.Persister,
	}, nil
}

type runner struct {
	conversationID string

	loop *toolloop.Loop

	eventSinks     []events.EventSink
	transitionHook toolloop.TransitionHook

	persister OutcomePersister
}

var _ session.InferenceRunner = (*runner)(nil)

func (r *runner) RunLoop(ctx context.Context, run toolloop.Run, emit toolloop.TurnEmitter) (*toolloop.Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	runCtx := ctx
	if len(r.eventSinks) > 0 {
		runCtx = events.WithEventSinks(runCtx, r.eventSinks...)
	}
	if r.transitionHook != nil {
		runCtx = toolloop.WithTransitionHook(runCtx, r.transitionHook)
	}
	if run.ConversationID == "" {
		run.ConversationID = r.conversationID
	}

	out, err := r.loop.RunLoop(runCtx, run, emit)

	if err == nil && r.persister != nil && out != nil {
		if perr := r.persister.PersistOutcome(runCtx, run.ConversationID, out); perr != nil {
			log.Warn().Err(perr).Str("conversation_id", run.ConversationID).Msg("enginebuilder: could not persist outcome")
		}
	}

	return out, err
}
