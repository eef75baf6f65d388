package events

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/jarvis/pkg/turns"
)

type EventType string

const (
	// EventTypeStart marks the beginning of an agent loop run
	EventTypeStart EventType = "start"
	// EventTypeInference is published after every model decision
	EventTypeInference EventType = "inference"

	// Model requested a capability
	EventTypeToolCall EventType = "tool-call"
	// The capability finished (successfully or not) and its observation is ready
	EventTypeToolCallExecutionResult EventType = "tool-call-execution-result"

	// A turn was appended to a conversation
	EventTypeTurn EventType = "turn"

	EventTypeFinal          EventType = "final"
	EventTypeIterationLimit EventType = "iteration-limit"
	EventTypeError          EventType = "error"

	// Live voice session state transitions
	EventTypeLiveState EventType = "live-state"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta,omitempty"`

	// store payload if the event was deserialized from JSON (see NewEventFromJson), not further used
	payload []byte
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

var _ Event = &EventImpl{}

// EventMetadata is carried by every event.
type EventMetadata struct {
	LLMInferenceData
	ID             uuid.UUID              `json:"message_id" yaml:"message_id" mapstructure:"message_id"`
	ConversationID string                 `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty" mapstructure:"conversation_id"`
	RunID          string                 `json:"run_id,omitempty" yaml:"run_id,omitempty" mapstructure:"run_id"`
	Iteration      int                    `json:"iteration,omitempty" yaml:"iteration,omitempty" mapstructure:"iteration"`
	Extra          map[string]interface{} `json:"extra,omitempty" yaml:"extra,omitempty" mapstructure:"extra"`
}

// NewMetadata returns metadata with a fresh message id.
func NewMetadata(conversationID, runID string, iteration int) EventMetadata {
	return EventMetadata{
		ID:             uuid.New(),
		ConversationID: conversationID,
		RunID:          runID,
		Iteration:      iteration,
	}
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("message_id", em.ID.String())
	if em.ConversationID != "" {
		e.Str("conversation_id", em.ConversationID)
	}
	if em.RunID != "" {
		e.Str("run_id", em.RunID)
	}
	if em.Iteration > 0 {
		e.Int("iteration", em.Iteration)
	}
	if em.Model != "" {
		e.Str("model", em.Model)
	}
	if em.StopReason != nil && *em.StopReason != "" {
		e.Str("stop_reason", *em.StopReason)
	}
	if em.Usage != nil {
		e.Int("input_tokens", em.Usage.InputTokens)
		e.Int("output_tokens", em.Usage.OutputTokens)
	}
	if em.DurationMs != nil {
		e.Int64("duration_ms", *em.DurationMs)
	}
	if len(em.Extra) > 0 {
		e.Dict("extra", zerolog.Dict().Fields(em.Extra))
	}
}

type EventStart struct {
	EventImpl
	Prompt string `json:"prompt"`
}

func NewStartEvent(metadata EventMetadata, prompt string) *EventStart {
	return &EventStart{
		EventImpl: EventImpl{Type_: EventTypeStart, Metadata_: metadata},
		Prompt:    prompt,
	}
}

// EventInference reports one model decision.
type EventInference struct {
	EventImpl
	Text     string `json:"text,omitempty"`
	ToolName string `json:"tool_name,omitempty"`
}

func NewInferenceEvent(metadata EventMetadata, text string, toolName string) *EventInference {
	return &EventInference{
		EventImpl: EventImpl{Type_: EventTypeInference, Metadata_: metadata},
		Text:      text,
		ToolName:  toolName,
	}
}

type ToolCall struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input string `json:"input"`
}

func (tc ToolCall) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("id", tc.ID).Str("name", tc.Name).Str("input", tc.Input)
}

type EventToolCall struct {
	EventImpl
	ToolCall ToolCall `json:"tool_call"`
	Progress string   `json:"progress"`
}

func NewToolCallEvent(metadata EventMetadata, toolCall ToolCall, progress string) *EventToolCall {
	return &EventToolCall{
		EventImpl: EventImpl{Type_: EventTypeToolCall, Metadata_: metadata},
		ToolCall:  toolCall,
		Progress:  progress,
	}
}

type ToolResult struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Result    string `json:"result"`
	ErrorKind string `json:"error_kind,omitempty"`
}

func (tr ToolResult) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("id", tr.ID).Str("name", tr.Name)
	if tr.ErrorKind != "" {
		ev.Str("error_kind", tr.ErrorKind)
	}
}

type EventToolCallExecutionResult struct {
	EventImpl
	ToolResult ToolResult `json:"tool_result"`
	DurationMs int64      `json:"duration_ms"`
}

func NewToolCallExecutionResultEvent(metadata EventMetadata, toolResult ToolResult, durationMs int64) *EventToolCallExecutionResult {
	return &EventToolCallExecutionResult{
		EventImpl:  EventImpl{Type_: EventTypeToolCallExecutionResult, Metadata_: metadata},
		ToolResult: toolResult,
		DurationMs: durationMs,
	}
}

// EventTurn carries a turn appended to a conversation.
type EventTurn struct {
	EventImpl
	Turn turns.Turn `json:"turn"`
}

func NewTurnEvent(metadata EventMetadata, turn turns.Turn) *EventTurn {
	return &EventTurn{
		EventImpl: EventImpl{Type_: EventTypeTurn, Metadata_: metadata},
		Turn:      turn,
	}
}

type EventFinal struct {
	EventImpl
	Text string `json:"text"`
}

func NewFinalEvent(metadata EventMetadata, text string) *EventFinal {
	return &EventFinal{
		EventImpl: EventImpl{Type_: EventTypeFinal, Metadata_: metadata},
		Text:      text,
	}
}

type EventIterationLimit struct {
	EventImpl
	MaxIterations int `json:"max_iterations"`
}

func NewIterationLimitEvent(metadata EventMetadata, maxIterations int) *EventIterationLimit {
	return &EventIterationLimit{
		EventImpl:     EventImpl{Type_: EventTypeIterationLimit, Metadata_: metadata},
		MaxIterations: maxIterations,
	}
}

type EventError struct {
	EventImpl
	ErrorString string `json:"error_string"`
}

func NewErrorEvent(metadata EventMetadata, err error) *EventError {
	return &EventError{
		EventImpl:   EventImpl{Type_: EventTypeError, Metadata_: metadata},
		ErrorString: err.Error(),
	}
}

type EventLiveState struct {
	EventImpl
	From string `json:"from"`
	To   string `json:"to"`
}

func NewLiveStateEvent(metadata EventMetadata, from, to string) *EventLiveState {
	return &EventLiveState{
		EventImpl: EventImpl{Type_: EventTypeLiveState, Metadata_: metadata},
		From:      from,
		To:        to,
	}
}

// NewEventFromJson decodes an event published through a WatermillSink.
func NewEventFromJson(b []byte) (Event, error) {
	var hdr EventImpl
	if err := json.Unmarshal(b, &hdr); err != nil {
		return nil, err
	}

	var ret Event
	switch hdr.Type_ {
	case EventTypeStart:
		ret = &EventStart{}
	case EventTypeInference:
		ret = &EventInference{}
	case EventTypeToolCall:
		ret = &EventToolCall{}
	case EventTypeToolCallExecutionResult:
		ret = &EventToolCallExecutionResult{}
	case EventTypeTurn:
		ret = &EventTurn{}
	case EventTypeFinal:
		ret = &EventFinal{}
	case EventTypeIterationLimit:
		ret = &EventIterationLimit{}
	case EventTypeError:
		ret = &EventError{}
	case EventTypeLiveState:
		ret = &EventLiveState{}
	default:
		return nil, errors.Errorf("unknown event type %q", hdr.Type_)
	}

	if err := json.Unmarshal(b, ret); err != nil {
		return nil, errors.Wrapf(err, "decode %s event", hdr.Type_)
	}
	if setter, ok := ret.(interface{ setPayload([]byte) }); ok {
		setter.setPayload(b)
	}
	return ret, nil
}

func (e *EventImpl) setPayload(b []byte) {
	e.payload = b
}
