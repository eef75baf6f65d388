package enginebuilder

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/jarvis/pkg/capabilities"
	"github.com/go-go-golems/jarvis/pkg/events"
	"github.com/go-go-golems/jarvis/pkg/inference/engine"
	"github.com/go-go-golems/jarvis/pkg/inference/middleware"
	"github.com/go-go-golems/jarvis/pkg/inference/toolloop"
	"github.com/go-go-golems/jarvis/pkg/turns"
)

type fakeExecutor struct {
	calls []engine.ToolCall
}

func (f *fakeExecutor) Catalog() *capabilities.Catalog {
	return capabilities.DefaultCatalog()
}

func (f *fakeExecutor) Execute(_ context.Context, call engine.ToolCall, _ *capabilities.Attachment) capabilities.Result {
	f.calls = append(f.calls, call)
	return capabilities.Success(map[string]any{"text": "observed"}, nil, nil)
}

type recordingPersister struct {
	conversationID string
	outcome        *toolloop.Outcome
	err            error
}

func (p *recordingPersister) PersistOutcome(_ context.Context, conversationID string, out *toolloop.Outcome) error {
	p.conversationID = conversationID
	p.outcome = out
	return p.err
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) PublishEvent(e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func oneToolThenAnswer() engine.Engine {
	n := 0
	return engine.EngineFunc(func(ctx context.Context, req *engine.Request) (*engine.Response, error) {
		n++
		if n == 1 {
			return &engine.Response{ToolCall: &engine.ToolCall{Name: "generateText", Arguments: map[string]any{"prompt": "p"}}}, nil
		}
		return &engine.Response{Text: "final"}, nil
	})
}

func run(prompt string) toolloop.Run {
	return toolloop.Run{UserTurn: turns.NewUserTurn(prompt, nil)}
}

func TestBuilder_BuildValidation(t *testing.T) {
	_, err := (*Builder)(nil).Build(context.Background(), "c")
	require.ErrorIs(t, err, ErrBuilderNil)

	_, err = New().Build(context.Background(), "c")
	require.ErrorIs(t, err, ErrBuilderBaseNil)

	_, err = New(WithBase(oneToolThenAnswer())).Build(context.Background(), "c")
	require.ErrorIs(t, err, ErrBuilderExecutorNil)
}

func TestBuilder_RunnerRunsLoopWithMiddlewareSinksAndPersister(t *testing.T) {
	exec := &fakeExecutor{}
	persister := &recordingPersister{}
	sink := &recordingSink{}
	var seenSystemPrompts []string
	var transitions []toolloop.State

	capture := func(next middleware.HandlerFunc) middleware.HandlerFunc {
		return func(ctx context.Context, req *engine.Request) (*engine.Response, error) {
			seenSystemPrompts = append(seenSystemPrompts, req.SystemPrompt)
			return next(ctx, req)
		}
	}

	b := New(
		WithBase(oneToolThenAnswer()),
		WithMiddlewares(middleware.NewSystemPromptMiddleware("You are Jarvis."), capture),
		WithExecutor(exec),
		WithEventSinks(sink),
		WithTransitionHook(func(_ context.Context, _, to toolloop.State) { transitions = append(transitions, to) }),
		WithPersister(persister),
	)
	r, err := b.Build(context.Background(), "conv-7")
	require.NoError(t, err)

	var emitted []turns.Turn
	out, err := r.RunLoop(context.Background(), run("hello"), func(_ context.Context, tt turns.Turn) error {
		emitted = append(emitted, tt)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, toolloop.StateTerminatedAnswer, out.State)
	require.Equal(t, "final", out.FinalText)
	require.Len(t, exec.calls, 1)
	require.Len(t, emitted, 2)

	require.Equal(t, []string{"You are Jarvis.", "You are Jarvis."}, seenSystemPrompts)
	require.Equal(t, toolloop.StateTerminatedAnswer, transitions[len(transitions)-1])

	require.Equal(t, "conv-7", persister.conversationID)
	require.Same(t, out, persister.outcome)

	require.NotEmpty(t, sink.events)
	for _, e := range sink.events {
		require.Equal(t, "conv-7", e.Metadata().ConversationID)
	}
}

func TestBuilder_PersisterFailureDoesNotFailRun(t *testing.T) {
	persister := &recordingPersister{err: errors.New("db locked")}
	r, err := New(WithBase(oneToolThenAnswer()), WithExecutor(&fakeExecutor{}), WithPersister(persister)).
		Build(context.Background(), "c")
	require.NoError(t, err)

	out, err := r.RunLoop(context.Background(), run("x"), nil)
	require.NoError(t, err)
	require.Equal(t, "final", out.FinalText)
	require.NotNil(t, persister.outcome)
}

func TestBuilder_AbortedRunIsNotPersisted(t *testing.T) {
	persister := &recordingPersister{}
	failing := engine.EngineFunc(func(context.Context, *engine.Request) (*engine.Response, error) {
		return nil, errors.New("unreachable")
	})
	r, err := New(WithBase(failing), WithExecutor(&fakeExecutor{}), WithPersister(persister)).
		Build(context.Background(), "c")
	require.NoError(t, err)

	_, err = r.RunLoop(context.Background(), run("x"), nil)
	var transport *toolloop.OrchestrationTransportError
	require.True(t, errors.As(err, &transport))
	require.Nil(t, persister.outcome)
}

func TestBuilder_LoopConfigIsApplied(t *testing.T) {
	always := engine.EngineFunc(func(context.Context, *engine.Request) (*engine.Response, error) {
		return &engine.Response{ToolCall: &engine.ToolCall{Name: "generateText", Arguments: map[string]any{"prompt": "p"}}}, nil
	})
	r, err := New(
		WithBase(always),
		WithExecutor(&fakeExecutor{}),
		WithLoopConfig(toolloop.LoopConfig{MaxIterations: 2}),
	).Build(context.Background(), "c")
	require.NoError(t, err)

	out, err := r.RunLoop(context.Background(), run("x"), nil)
	require.NoError(t, err)
	require.Equal(t, 2, out.Requests)
	require.Equal(t, toolloop.StateTerminatedIterationLimit, out.State)
}
