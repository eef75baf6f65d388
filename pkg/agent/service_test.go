package agent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/jarvis/pkg/capabilities"
	"github.com/go-go-golems/jarvis/pkg/conversation"
	"github.com/go-go-golems/jarvis/pkg/inference/engine"
	"github.com/go-go-golems/jarvis/pkg/inference/session"
	"github.com/go-go-golems/jarvis/pkg/inference/toolloop"
	"github.com/go-go-golems/jarvis/pkg/inference/toolloop/enginebuilder"
	"github.com/go-go-golems/jarvis/pkg/knowledge"
	"github.com/go-go-golems/jarvis/pkg/steps/ai/types"
	"github.com/go-go-golems/jarvis/pkg/turns"
)

type fakeExecutor struct{}

func (fakeExecutor) Catalog() *capabilities.Catalog { return capabilities.DefaultCatalog() }

func (fakeExecutor) Execute(_ context.Context, call engine.ToolCall, _ *capabilities.Attachment) capabilities.Result {
	return capabilities.Success(map[string]any{"text": "it is sunny"}, nil, nil)
}

type recordingEngine struct {
	mu       sync.Mutex
	requests []*engine.Request
	respond  func(n int) (*engine.Response, error)
}

func (e *recordingEngine) RunInference(ctx context.Context, req *engine.Request) (*engine.Response, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	n := len(e.requests)
	e.mu.Unlock()
	return e.respond(n)
}

func weatherEngine() *recordingEngine {
	return &recordingEngine{respond: func(n int) (*engine.Response, error) {
		if n == 1 {
			return &engine.Response{ToolCall: &engine.ToolCall{
				Name:      "generateTextWithGoogleSearch",
				Arguments: map[string]any{"prompt": "weather"},
			}}, nil
		}
		return &engine.Response{Text: "It is sunny."}, nil
	}}
}

type fakeRules struct {
	rule *knowledge.Rule
}

func (f fakeRules) Match(_ context.Context, _ string) (*knowledge.Rule, bool, error) {
	return f.rule, f.rule != nil, nil
}

type countingSaver struct{ n int }

func (c *countingSaver) Save(context.Context) error {
	c.n++
	return nil
}

type recordingLogger struct {
	mu    sync.Mutex
	turns []turns.Turn
}

func (l *recordingLogger) LogTurn(_ context.Context, _ string, t turns.Turn) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, t)
	return nil
}

func newService(t *testing.T, eng engine.Engine, opts ...Option) (*Service, *conversation.Manager) {
	t.Helper()
	store := conversation.NewManager()
	b := enginebuilder.New(enginebuilder.WithBase(eng), enginebuilder.WithExecutor(fakeExecutor{}))
	opts = append([]Option{WithEngineFor(func(c types.ModelChoice) string {
		if c == types.ModelPro {
			return "gemini-2.5-pro"
		}
		return "gemini-2.5-flash"
	})}, opts...)
	s, err := NewService(store, session.NewRegistry(b), opts...)
	require.NoError(t, err)
	return s, store
}

func TestSubmitTurn_EmptySubmissionIsNoop(t *testing.T) {
	eng := weatherEngine()
	s, store := newService(t, eng)

	_, err := s.SubmitTurn(context.Background(), Submission{Prompt: "   "})
	require.ErrorIs(t, err, ErrEmptySubmission)
	assert.Empty(t, store.List())
	assert.Empty(t, eng.requests)
}

func TestSubmitTurn_NewConversationRunsLoop(t *testing.T) {
	eng := weatherEngine()
	logger := &recordingLogger{}
	s, store := newService(t, eng, WithTurnLogger(logger))

	res, err := s.SubmitTurn(context.Background(), Submission{Prompt: "What's the weather like in Lisbon today, please?"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "It is sunny.", res.FinalText())
	require.NotNil(t, res.Outcome)
	assert.Equal(t, toolloop.StateTerminatedAnswer, res.Outcome.State)

	c, err := store.Get(res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "What's the weather like in Lis", c.Title)
	require.Len(t, c.Turns, 3)
	assert.Equal(t, turns.RoleUser, c.Turns[0].Role)
	assert.True(t, c.Turns[1].IsProgress())
	assert.Equal(t, "It is sunny.", c.Turns[2].Text())
	assert.Len(t, res.Turns, 3)

	require.Len(t, eng.requests, 2)
	assert.Equal(t, "gemini-2.5-flash", eng.requests[0].Model)

	// progress turns are not logged
	require.Len(t, logger.turns, 2)
}

func TestSubmitTurn_AttachmentOnlyGetsDefaultTitle(t *testing.T) {
	s, store := newService(t, weatherEngine())

	res, err := s.SubmitTurn(context.Background(), Submission{
		Attachment: &turns.Media{MIMEType: "image/png", Data: []byte{1}},
	})
	require.NoError(t, err)
	c, err := store.Get(res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, c.Title)
}

func TestTitleFor(t *testing.T) {
	assert.Equal(t, "hello", TitleFor("  hello "))
	assert.Equal(t, DefaultTitle, TitleFor(""))
	long := strings.Repeat("é", 40)
	assert.Equal(t, strings.Repeat("é", 30), TitleFor(long))
}

func TestSubmitTurn_ExistingConversationSendsHistory(t *testing.T) {
	eng := &recordingEngine{respond: func(int) (*engine.Response, error) {
		return &engine.Response{Text: "ok"}, nil
	}}
	s, store := newService(t, eng)

	first, err := s.SubmitTurn(context.Background(), Submission{Prompt: "one"})
	require.NoError(t, err)
	second, err := s.SubmitTurn(context.Background(), Submission{ConversationID: first.ConversationID, Prompt: "two", Model: types.ModelPro})
	require.NoError(t, err)
	assert.False(t, second.Created)

	require.Len(t, eng.requests, 2)
	assert.Len(t, eng.requests[1].Messages, 3)
	assert.Equal(t, "gemini-2.5-pro", eng.requests[1].Model)

	ts, err := store.ListTurns(first.ConversationID)
	require.NoError(t, err)
	assert.Len(t, ts, 4)
}

func TestSubmitTurn_UnknownConversationAndModel(t *testing.T) {
	s, _ := newService(t, weatherEngine())

	_, err := s.SubmitTurn(context.Background(), Submission{ConversationID: "nope", Prompt: "x"})
	require.ErrorIs(t, err, conversation.ErrUnknownConversation)

	_, err = s.SubmitTurn(context.Background(), Submission{Prompt: "x", Model: "ultra"})
	require.ErrorIs(t, err, ErrUnknownModel)
}

func TestSubmitTurn_RuleAnswersWithoutModel(t *testing.T) {
	eng := weatherEngine()
	saver := &countingSaver{}
	s, store := newService(t, eng,
		WithRules(fakeRules{rule: &knowledge.Rule{ID: 3, Condition: "hello", Action: "Hi, sir."}}),
		WithSaver(saver),
	)

	res, err := s.SubmitTurn(context.Background(), Submission{Prompt: "hello jarvis"})
	require.NoError(t, err)
	require.NotNil(t, res.Rule)
	assert.Equal(t, "Hi, sir.", res.FinalText())
	assert.Nil(t, res.Outcome)
	assert.Empty(t, eng.requests)
	assert.Equal(t, 1, saver.n)

	ts, err := store.ListTurns(res.ConversationID)
	require.NoError(t, err)
	require.Len(t, ts, 2)
}

func TestSubmitTurn_TransportErrorIsReturnedAndSaved(t *testing.T) {
	eng := &recordingEngine{respond: func(int) (*engine.Response, error) {
		return nil, errors.New("connection reset")
	}}
	saver := &countingSaver{}
	s, store := newService(t, eng, WithSaver(saver))

	res, err := s.SubmitTurn(context.Background(), Submission{Prompt: "hi"})
	var transport *toolloop.OrchestrationTransportError
	require.True(t, errors.As(err, &transport))
	require.NotNil(t, res)
	assert.Equal(t, 1, saver.n)

	ts, err := store.ListTurns(res.ConversationID)
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, "Sorry, an error occurred: connection reset", ts[1].Text())
}

func TestSubmitTurn_OneRunPerConversation(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	eng := &recordingEngine{respond: func(int) (*engine.Response, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return &engine.Response{Text: "done"}, nil
	}}
	s, store := newService(t, eng)
	id, err := store.Create("busy", nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.SubmitTurn(context.Background(), Submission{ConversationID: id, Prompt: "first"})
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first run did not start")
	}

	_, err = s.SubmitTurn(context.Background(), Submission{ConversationID: id, Prompt: "second"})
	require.ErrorIs(t, err, session.ErrSessionAlreadyActive)

	// another conversation is not blocked
	other := make(chan error, 1)
	go func() {
		_, err := s.SubmitTurn(context.Background(), Submission{Prompt: "elsewhere"})
		other <- err
	}()

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, <-other)

	ts, err := store.ListTurns(id)
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, "first", ts[0].Text())
}

func TestSubmitTurn_ConcurrentSubmissionsLeaveNoOrphanTurns(t *testing.T) {
	release := make(chan struct{})
	eng := &recordingEngine{respond: func(int) (*engine.Response, error) {
		<-release
		return &engine.Response{Text: "done"}, nil
	}}
	s, store := newService(t, eng, WithRules(fakeRules{}))
	id, err := store.Create("busy", nil)
	require.NoError(t, err)

	const n = 16
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := s.SubmitTurn(context.Background(), Submission{ConversationID: id, Prompt: "hello"})
			results <- err
		}()
	}

	accepted, conflicts := 0, 0
	collect := func(err error) {
		if err == nil {
			accepted++
			return
		}
		require.ErrorIs(t, err, session.ErrSessionAlreadyActive)
		conflicts++
	}
	for i := 0; i < n-1; i++ {
		select {
		case err := <-results:
			collect(err)
		case <-time.After(5 * time.Second):
			t.Fatal("submissions did not return")
		}
	}
	close(release)
	collect(<-results)

	assert.Equal(t, 1, accepted)
	assert.Equal(t, n-1, conflicts)

	ts, err := store.ListTurns(id)
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, turns.RoleUser, ts[0].Role)
	assert.Equal(t, "done", ts[1].Text())
}

func TestSubmitTurn_RuleAnswerHoldsTheSession(t *testing.T) {
	matching := make(chan struct{})
	unblock := make(chan struct{})
	rules := blockingRules{entered: matching, release: unblock, rule: &knowledge.Rule{ID: 1, Action: "Hi."}}
	s, store := newService(t, weatherEngine(), WithRules(rules))
	id, err := store.Create("rules", nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.SubmitTurn(context.Background(), Submission{ConversationID: id, Prompt: "hello"})
		done <- err
	}()
	<-matching

	_, err = s.SubmitTurn(context.Background(), Submission{ConversationID: id, Prompt: "again"})
	require.ErrorIs(t, err, session.ErrSessionAlreadyActive)

	close(unblock)
	require.NoError(t, <-done)

	ts, err := store.ListTurns(id)
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, "hello", ts[0].Text())
	assert.Equal(t, "Hi.", ts[1].Text())
}

type blockingRules struct {
	entered chan struct{}
	release chan struct{}
	rule    *knowledge.Rule
}

func (b blockingRules) Match(_ context.Context, _ string) (*knowledge.Rule, bool, error) {
	close(b.entered)
	<-b.release
	return b.rule, true, nil
}

func TestSubmitTurn_IdenticalPromptsStartIndependentConversations(t *testing.T) {
	eng := &recordingEngine{respond: func(int) (*engine.Response, error) {
		return &engine.Response{Text: "ok"}, nil
	}}
	s, store := newService(t, eng)

	first, err := s.SubmitTurn(context.Background(), Submission{Prompt: "same question"})
	require.NoError(t, err)
	second, err := s.SubmitTurn(context.Background(), Submission{Prompt: "same question"})
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.True(t, second.Created)
	assert.NotEqual(t, first.ConversationID, second.ConversationID)
	assert.Len(t, store.List(), 2)

	for _, id := range []string{first.ConversationID, second.ConversationID} {
		ts, err := store.ListTurns(id)
		require.NoError(t, err)
		users := 0
		for _, tt := range ts {
			if tt.Role == turns.RoleUser {
				users++
			}
		}
		assert.Equal(t, 1, users, "conversation %s", id)
	}

	// the second run does not see the first conversation
	require.Len(t, eng.requests, 2)
	assert.Len(t, eng.requests[1].Messages, 1)
}

type fakeLearner struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeLearner) LearnRule(_ context.Context, text string) (*knowledge.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	condition, action, err := knowledge.ParseRule(text)
	if err != nil {
		return nil, err
	}
	return &knowledge.Rule{ID: int64(len(f.texts)), Condition: condition, Action: action, Active: true}, nil
}

func TestSubmitTurn_TeachesRuleInConversation(t *testing.T) {
	eng := weatherEngine()
	learner := &fakeLearner{}
	saver := &countingSaver{}
	s, store := newService(t, eng, WithRuleLearner(learner), WithSaver(saver))

	ask, err := s.SubmitTurn(context.Background(), Submission{Prompt: "Jarvis, quero te ensinar uma regra"})
	require.NoError(t, err)
	assert.Equal(t, "Ótimo! Por favor, me diga a regra. Tente usar um formato como 'Se [condição], então [ação ou conclusão]'.", ask.FinalText())
	assert.Nil(t, ask.Learned)
	assert.True(t, s.AwaitingRule(ask.ConversationID))

	learned, err := s.SubmitTurn(context.Background(), Submission{
		ConversationID: ask.ConversationID,
		Prompt:         "Se bom dia, então Bom dia, senhor.",
	})
	require.NoError(t, err)
	require.NotNil(t, learned.Learned)
	assert.Equal(t, "Entendido. Regra aprendida: 'Se bom dia, então Bom dia, senhor.'.", learned.FinalText())
	assert.False(t, s.AwaitingRule(ask.ConversationID))
	assert.Equal(t, []string{"Se bom dia, então Bom dia, senhor."}, learner.texts)

	assert.Empty(t, eng.requests)
	assert.Equal(t, 2, saver.n)

	ts, err := store.ListTurns(ask.ConversationID)
	require.NoError(t, err)
	require.Len(t, ts, 4)
}

func TestSubmitTurn_TeachingBadFormatClearsState(t *testing.T) {
	eng := &recordingEngine{respond: func(int) (*engine.Response, error) {
		return &engine.Response{Text: "model"}, nil
	}}
	learner := &fakeLearner{}
	s, _ := newService(t, eng, WithRuleLearner(learner))

	ask, err := s.SubmitTurn(context.Background(), Submission{Prompt: "I want to teach you a rule"})
	require.NoError(t, err)
	assert.Contains(t, ask.FinalText(), "'If [condition], then [action or conclusion]'")

	bad, err := s.SubmitTurn(context.Background(), Submission{ConversationID: ask.ConversationID, Prompt: "hello means hi"})
	require.NoError(t, err)
	assert.Equal(t, "I could not understand the rule. Please try 'If [condition], then [action]'.", bad.FinalText())
	assert.Nil(t, bad.Learned)

	// the state is gone, the next message goes to the model
	next, err := s.SubmitTurn(context.Background(), Submission{ConversationID: ask.ConversationID, Prompt: "If a, then b"})
	require.NoError(t, err)
	assert.Equal(t, "model", next.FinalText())
	assert.Len(t, learner.texts, 1)
	assert.Len(t, eng.requests, 1)
}

func TestSubmitTurn_TeachingIsPerConversation(t *testing.T) {
	eng := &recordingEngine{respond: func(int) (*engine.Response, error) {
		return &engine.Response{Text: "model"}, nil
	}}
	s, _ := newService(t, eng, WithRuleLearner(&fakeLearner{}))

	ask, err := s.SubmitTurn(context.Background(), Submission{Prompt: "quero te ensinar uma regra"})
	require.NoError(t, err)

	other, err := s.SubmitTurn(context.Background(), Submission{Prompt: "Se a, então b"})
	require.NoError(t, err)
	assert.Equal(t, "model", other.FinalText())
	assert.True(t, s.AwaitingRule(ask.ConversationID))

	s.Remove(ask.ConversationID)
	assert.False(t, s.AwaitingRule(ask.ConversationID))
}
