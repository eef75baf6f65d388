package gemini

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/go-go-golems/jarvis/pkg/capabilities"
	"github.com/go-go-golems/jarvis/pkg/inference/engine"
	"github.com/go-go-golems/jarvis/pkg/steps/ai/settings"
	"github.com/go-go-golems/jarvis/pkg/turns"
)

func newTestEngine(t *testing.T, models *fakeModels) *Engine {
	t.Helper()
	temp := 0.2
	e, err := NewEngine(&Client{models: models}, &settings.ChatSettings{Engine: "gemini-2.5-flash", Temperature: &temp})
	require.NoError(t, err)
	return e
}

func request(prompt string) *engine.Request {
	return &engine.Request{
		SystemPrompt: "You are JARVIS.",
		Messages:     engine.MessagesFromTurns([]turns.Turn{turns.NewUserTurn(prompt, nil)}),
		Tools:        capabilities.DefaultCatalog().ToolDefinitions(),
		ToolChoice:   engine.ToolChoiceAuto,
	}
}

func TestEngine_ReturnsToolCall(t *testing.T) {
	models := &fakeModels{generateContent: func(string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromFunctionCall("generateImage", map[string]any{"prompt": "a cat"}, genai.RoleModel),
		}}}, nil
	}}
	resp, err := newTestEngine(t, models).RunInference(context.Background(), request("draw a cat"))
	require.NoError(t, err)
	require.True(t, resp.HasToolCall())
	assert.Equal(t, "generateImage", resp.ToolCall.Name)
	assert.Equal(t, "a cat", resp.ToolCall.Arguments["prompt"])
	assert.Empty(t, resp.Text)

	cfg := models.configs[0]
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "You are JARVIS.", cfg.SystemInstruction.Parts[0].Text)
	require.Len(t, cfg.Tools, 1)
	assert.Len(t, cfg.Tools[0].FunctionDeclarations, 10)
	assert.Equal(t, genai.FunctionCallingConfigModeAuto, cfg.ToolConfig.FunctionCallingConfig.Mode)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.2, *cfg.Temperature, 1e-6)
	assert.Equal(t, []string{"gemini-2.5-flash"}, models.models)
}

func TestEngine_ToolCallKeepsThoughtSignature(t *testing.T) {
	models := &fakeModels{generateContent: func(string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		part := genai.NewPartFromFunctionCall("generateImage", map[string]any{"prompt": "a cat"})
		part.ThoughtSignature = []byte("sig")
		return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromParts([]*genai.Part{part}, genai.RoleModel),
		}}}, nil
	}}
	e := newTestEngine(t, models)
	resp, err := e.RunInference(context.Background(), request("draw a cat"))
	require.NoError(t, err)
	require.True(t, resp.HasToolCall())
	assert.Equal(t, []byte("sig"), resp.ToolCall.ThoughtSignature)

	// the next request replays the call with its signature
	req := request("draw a cat")
	req.Messages = append(req.Messages, engine.NewToolCallMessage(*resp.ToolCall))
	_, err = e.RunInference(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, models.contents, 2)
	replayed := models.contents[1][1].Parts[0]
	require.NotNil(t, replayed.FunctionCall)
	assert.Equal(t, []byte("sig"), replayed.ThoughtSignature)
}

func TestEngine_ReturnsTextAndCitations(t *testing.T) {
	models := &fakeModels{generateContent: func(string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		resp := textResponse("It is sunny.", &genai.GroundingChunk{Web: &genai.GroundingChunkWeb{URI: "https://w", Title: "W"}})
		resp.UsageMetadata = &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 12, CandidatesTokenCount: 3}
		return resp, nil
	}}
	req := request("weather?")
	req.Model = "gemini-2.5-pro"

	resp, err := newTestEngine(t, models).RunInference(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp.HasToolCall())
	assert.Equal(t, "It is sunny.", resp.Text)
	assert.Equal(t, []turns.Citation{{Kind: turns.CitationWeb, URI: "https://w", Title: "W"}}, resp.Citations)
	assert.Equal(t, "STOP", resp.StopReason)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 3, resp.Usage.OutputTokens)
	assert.Equal(t, []string{"gemini-2.5-pro"}, models.models)
}

func TestEngine_WrapsTransportErrors(t *testing.T) {
	models := &fakeModels{generateContent: func(string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return nil, errors.New("503 unavailable")
	}}
	_, err := newTestEngine(t, models).RunInference(context.Background(), request("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503 unavailable")
}

func TestNewEngine_Validation(t *testing.T) {
	_, err := NewEngine(nil, &settings.ChatSettings{Engine: "x"})
	assert.Error(t, err)
	_, err = NewEngine(&Client{}, &settings.ChatSettings{})
	assert.Error(t, err)
}
