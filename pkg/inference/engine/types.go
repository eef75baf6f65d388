package engine

import (
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/go-go-golems/jarvis/pkg/events"
	"github.com/go-go-golems/jarvis/pkg/turns"
)

// ToolDefinition is a tool offered to the model.
type ToolDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// ToolChoice defines how the model should choose tools
type ToolChoice string

const (
	ToolChoiceAuto ToolChoice = "auto" // Let the model decide
	ToolChoiceNone ToolChoice = "none" // Never call tools
)

// ToolCall is a capability invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	// ThoughtSignature is the opaque signature the provider attached to the
	// call; it is sent back unchanged when the call is replayed
	ThoughtSignature []byte `json:"thought_signature,omitempty"`
}

// ToolResult is the observation fed back to the model for a ToolCall.
type ToolResult struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Message is one entry of the model-facing history. Exactly one of Parts,
// ToolCall or ToolResult is set.
type Message struct {
	Role       turns.Role   `json:"role"`
	Parts      []turns.Part `json:"parts,omitempty"`
	ToolCall   *ToolCall    `json:"tool_call,omitempty"`
	ToolResult *ToolResult  `json:"tool_result,omitempty"`
}

type Request struct {
	// Model overrides the engine's default model when set
	Model        string
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDefinition
	ToolChoice   ToolChoice
}

// Response is either a final answer (Text, Citations) or a ToolCall.
type Response struct {
	Text       string
	Citations  []turns.Citation
	ToolCall   *ToolCall
	Model      string
	StopReason string
	Usage      *events.Usage
}

// HasToolCall reports whether the model asked for a capability.
func (r *Response) HasToolCall() bool {
	return r != nil && r.ToolCall != nil
}

// MessagesFromTurns converts conversation turns to model-facing history.
// Progress turns are user-facing only and are skipped. Media generated by a
// capability is not sent back to the model: model turns carry a text
// placeholder instead. User attachments are kept.
func MessagesFromTurns(ts []turns.Turn) []Message {
	ret := make([]Message, 0, len(ts))
	for _, t := range ts {
		if t.IsProgress() || len(t.Parts) == 0 {
			continue
		}
		parts := make([]turns.Part, 0, len(t.Parts))
		for _, p := range t.Parts {
			if m, ok := p.Media(); ok && t.Role == turns.RoleModel {
				parts = append(parts, turns.NewTextPart(GeneratedMediaPlaceholder(m)))
				continue
			}
			parts = append(parts, p)
		}
		ret = append(ret, Message{Role: t.Role, Parts: parts})
	}
	return ret
}

// GeneratedMediaPlaceholder is the text standing in for generated media in
// the model-facing history.
func GeneratedMediaPlaceholder(m turns.Media) string {
	mimeType := m.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return fmt.Sprintf("[generated %s]", mimeType)
}

func NewToolCallMessage(call ToolCall) Message {
	return Message{Role: turns.RoleModel, ToolCall: &call}
}

func NewToolResultMessage(result ToolResult) Message {
	return Message{Role: turns.RoleUser, ToolResult: &result}
}
