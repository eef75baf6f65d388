package toolloop

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jarvis/pkg/capabilities"
	"github.com/go-go-golems/jarvis/pkg/events"
	"github.com/go-go-golems/jarvis/pkg/inference/engine"
	"github.com/go-go-golems/jarvis/pkg/turns"
)

// Executor runs the capability a model asked for. *capabilities.Set
// implements it.
type Executor interface {
	Catalog() *capabilities.Catalog
	Execute(ctx context.Context, call engine.ToolCall, attachment *capabilities.Attachment) capabilities.Result
}

// TurnEmitter receives every turn the loop produces, in order. It is
// typically backed by conversation.Store.Append.
type TurnEmitter func(ctx context.Context, t turns.Turn) error

// Run is the input of one agent loop run.
type Run struct {
	ConversationID string
	RunID          string
	// History is a read snapshot of the conversation before UserTurn.
	History  []turns.Turn
	UserTurn turns.Turn
	// Attachment is passed to every capability invoked during the run.
	Attachment   *capabilities.Attachment
	Model        string
	SystemPrompt string
}

// Outcome describes how a run ended.
type Outcome struct {
	State State
	// Requests is the number of model decision requests issued.
	Requests int
	// Invocations is the number of capabilities executed.
	Invocations int
	FinalText   string
	// Emitted holds every turn passed to the emitter, in order.
	Emitted []turns.Turn
	Err     error
}

type Loop struct {
	eng      engine.Engine
	executor Executor
	loopCfg  LoopConfig
}

type Option func(*Loop)

func New(opts ...Option) *Loop {
	l := &Loop{
		loopCfg: DefaultLoopConfig(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func WithEngine(eng engine.Engine) Option {
	return func(l *Loop) { l.eng = eng }
}

func WithExecutor(exec Executor) Option {
	return func(l *Loop) { l.executor = exec }
}

func WithLoopConfig(cfg LoopConfig) Option {
	return func(l *Loop) { l.loopCfg = cfg }
}

func WithMaxIterations(n int) Option {
	return func(l *Loop) { l.loopCfg = l.loopCfg.WithMaxIterations(n) }
}

type runState struct {
	l       *Loop
	run     Run
	emit    TurnEmitter
	out     *Outcome
	state   State
	media   []turns.Part
	sources []turns.Citation
}

func (rs *runState) transition(ctx context.Context, to State) {
	from := rs.state
	rs.state = to
	rs.out.State = to
	if h, ok := TransitionHookFromContext(ctx); ok {
		h(ctx, from, to)
	}
}

func (rs *runState) meta(iteration int) events.EventMetadata {
	return events.NewMetadata(rs.run.ConversationID, rs.run.RunID, iteration)
}

func (rs *runState) append(ctx context.Context, iteration int, t turns.Turn) error {
	if err := rs.emit(ctx, t); err != nil {
		return errors.Wrapf(err, "append %s turn", t.Kind)
	}
	rs.out.Emitted = append(rs.out.Emitted, t)
	events.PublishEventToContext(ctx, events.NewTurnEvent(rs.meta(iteration), t))
	return nil
}

// RunLoop asks the model for the next action until it answers or the
// iteration cap is hit. The returned error is non-nil only when the run was
// aborted: an OrchestrationTransportError, or a failing emitter.
func (l *Loop) RunLoop(ctx context.Context, run Run, emit TurnEmitter) (*Outcome, error) {
	if l == nil {
		return nil, errors.New("tool loop is nil")
	}
	if l.eng == nil {
		return nil, errors.New("tool loop engine is nil")
	}
	if l.executor == nil {
		return nil, errors.New("tool loop executor is nil")
	}
	if emit == nil {
		emit = func(context.Context, turns.Turn) error { return nil }
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := run.UserTurn.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid user turn")
	}

	rs := &runState{l: l, run: run, emit: emit, out: &Outcome{}}
	maxIterations := l.loopCfg.maxIterations()
	catalog := l.executor.Catalog()

	history := engine.MessagesFromTurns(run.History)
	history = append(history, engine.MessagesFromTurns([]turns.Turn{run.UserTurn})...)

	events.PublishEventToContext(ctx, events.NewStartEvent(rs.meta(0), run.UserTurn.Text()))

	for i := 0; i < maxIterations; i++ {
		iteration := i + 1
		log.Debug().Int("iteration", iteration).Str("conversation_id", run.ConversationID).Msg("toolloop: engine inference step")
		rs.transition(ctx, StateAwaitingModelDecision)

		req := &engine.Request{
			Model:        run.Model,
			SystemPrompt: run.SystemPrompt,
			Messages:     append([]engine.Message(nil), history...),
			Tools:        catalog.ToolDefinitions(),
			ToolChoice:   engine.ToolChoiceAuto,
		}
		rs.out.Requests++
		start := time.Now()
		resp, err := l.eng.RunInference(ctx, req)
		if err != nil {
			return rs.abort(ctx, iteration, err)
		}
		if resp == nil {
			return rs.abort(ctx, iteration, errors.New("engine returned no response"))
		}

		meta := rs.meta(iteration)
		meta.Model = resp.Model
		meta.Usage = resp.Usage
		if resp.StopReason != "" {
			sr := resp.StopReason
			meta.StopReason = &sr
		}
		ms := time.Since(start).Milliseconds()
		meta.DurationMs = &ms
		toolName := ""
		if resp.HasToolCall() {
			toolName = resp.ToolCall.Name
		}
		events.PublishEventToContext(ctx, events.NewInferenceEvent(meta, resp.Text, toolName))

		if !resp.HasToolCall() {
			return rs.answer(ctx, iteration, resp)
		}

		call := *resp.ToolCall
		if call.ID == "" {
			call.ID = uuid.NewString()
		}
		if err := rs.invoke(ctx, iteration, call, &history); err != nil {
			return rs.out, err
		}
	}

	log.Warn().Int("max_iterations", maxIterations).Str("conversation_id", run.ConversationID).Msg("toolloop: maximum iterations reached")
	rs.transition(ctx, StateTerminatedIterationLimit)
	rs.out.Err = &IterationLimitExceeded{MaxIterations: maxIterations}
	events.PublishEventToContext(ctx, events.NewIterationLimitEvent(rs.meta(maxIterations), maxIterations))
	if err := rs.append(ctx, maxIterations, turns.NewErrorTurn(ApologyText)); err != nil {
		return rs.out, err
	}
	return rs.out, nil
}

func (rs *runState) invoke(ctx context.Context, iteration int, call engine.ToolCall, history *[]engine.Message) error {
	rs.transition(ctx, StateInvoking)
	catalog := rs.l.executor.Catalog()

	progress := catalog.ProgressMessage(call.Name)
	input, _ := json.Marshal(call.Arguments)
	events.PublishEventToContext(ctx, events.NewToolCallEvent(rs.meta(iteration),
		events.ToolCall{ID: call.ID, Name: call.Name, Input: string(input)}, progress))
	if err := rs.append(ctx, iteration, turns.NewProgressTurn(progress)); err != nil {
		return err
	}

	start := time.Now()
	res := rs.l.executor.Execute(ctx, call, rs.run.Attachment)
	rs.out.Invocations++
	if res.Failed() {
		log.Debug().Err(res.Err).Str("capability", call.Name).Msg("toolloop: capability failed, reporting to model")
	} else {
		rs.media = append(rs.media, res.Media...)
		rs.sources = append(rs.sources, res.Sources...)
	}

	observation := res.Observation()
	payload, _ := json.Marshal(observation)
	events.PublishEventToContext(ctx, events.NewToolCallExecutionResultEvent(rs.meta(iteration),
		events.ToolResult{ID: call.ID, Name: call.Name, Result: string(payload), ErrorKind: string(res.Kind())},
		time.Since(start).Milliseconds()))

	*history = append(*history,
		engine.NewToolCallMessage(call),
		engine.NewToolResultMessage(engine.ToolResult{ID: call.ID, Name: call.Name, Response: observation}),
	)
	return nil
}

func (rs *runState) answer(ctx context.Context, iteration int, resp *engine.Response) (*Outcome, error) {
	rs.transition(ctx, StateAnswering)

	var parts []turns.Part
	if resp.Text != "" {
		parts = append(parts, turns.NewTextPart(resp.Text))
	}
	parts = append(parts, rs.media...)

	sources := append([]turns.Citation(nil), rs.sources...)
	sources = append(sources, resp.Citations...)

	rs.out.FinalText = resp.Text
	events.PublishEventToContext(ctx, events.NewFinalEvent(rs.meta(iteration), resp.Text))

	if len(parts) == 0 {
		log.Debug().Int("iteration", iteration).Msg("toolloop: empty answer, nothing appended")
		rs.transition(ctx, StateTerminatedAnswer)
		return rs.out, nil
	}
	if len(sources) == 0 {
		sources = nil
	}
	if err := rs.append(ctx, iteration, turns.NewModelTurn(parts, sources)); err != nil {
		return rs.out, err
	}
	rs.transition(ctx, StateTerminatedAnswer)
	return rs.out, nil
}

func (rs *runState) abort(ctx context.Context, iteration int, cause error) (*Outcome, error) {
	err := &OrchestrationTransportError{Iteration: iteration, Cause: cause}
	log.Error().Err(cause).Int("iteration", iteration).Str("conversation_id", rs.run.ConversationID).Msg("toolloop: model request failed")
	rs.transition(ctx, StateTerminatedTransportError)
	rs.out.Err = err
	events.PublishEventToContext(ctx, events.NewErrorEvent(rs.meta(iteration), err))
	if appendErr := rs.append(ctx, iteration, turns.NewErrorTurn(ErrorTurnText(err))); appendErr != nil {
		log.Error().Err(appendErr).Msg("toolloop: could not append error turn")
	}
	return rs.out, err
}
