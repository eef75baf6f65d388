package gemini

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/go-go-golems/jarvis/pkg/inference/engine"
	"github.com/go-go-golems/jarvis/pkg/steps/ai/settings"
)

// Engine is the decision model of the agent loop on top of Gemini function
// calling.
type Engine struct {
	client   *Client
	settings *settings.ChatSettings
}

var _ engine.Engine = (*Engine)(nil)

func NewEngine(client *Client, chat *settings.ChatSettings) (*Engine, error) {
	if client == nil {
		return nil, errors.New("gemini engine needs a client")
	}
	if chat == nil || chat.Engine == "" {
		return nil, errors.New("no engine specified")
	}
	return &Engine{client: client, settings: chat}, nil
}

func (e *Engine) config(req *engine.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Tools: convertTools(req.Tools),
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if len(cfg.Tools) > 0 {
		mode := genai.FunctionCallingConfigModeAuto
		if req.ToolChoice == engine.ToolChoiceNone {
			mode = genai.FunctionCallingConfigModeNone
		}
		cfg.ToolConfig = &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode}}
	}

	s := e.settings
	if s.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*s.Temperature))
	}
	if s.TopP != nil {
		cfg.TopP = genai.Ptr(float32(*s.TopP))
	}
	if s.MaxResponseTokens != nil {
		mt := *s.MaxResponseTokens
		switch {
		case mt < 0:
			log.Warn().Int("requested_max_tokens", mt).Msg("Negative MaxResponseTokens provided; ignoring")
		case mt > math.MaxInt32:
			cfg.MaxOutputTokens = math.MaxInt32
		default:
			cfg.MaxOutputTokens = int32(mt) // #nosec G115
		}
	}
	return cfg
}

// RunInference issues one non-streaming generateContent request. The first
// function call of the first candidate wins; otherwise the text and the
// grounding citations are returned.
func (e *Engine) RunInference(ctx context.Context, req *engine.Request) (*engine.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	model := req.Model
	if model == "" {
		model = e.settings.Engine
	}

	contents := convertMessages(req.Messages)
	log.Debug().Str("model", model).Int("contents", len(contents)).Int("tools", len(req.Tools)).Msg("Gemini RunInference started")

	resp, err := e.client.models.GenerateContent(ctx, model, contents, e.config(req))
	if err != nil {
		return nil, errors.Wrap(err, "gemini generate content")
	}

	out := firstCandidate(resp)
	ret := &engine.Response{
		Model:      model,
		StopReason: out.stopReason,
		Usage:      usageFromResponse(resp),
	}
	if resp.ModelVersion != "" {
		ret.Model = resp.ModelVersion
	}
	if out.call != nil {
		args := out.call.Args
		if args == nil {
			args = map[string]any{}
		}
		ret.ToolCall = &engine.ToolCall{
			ID:               out.call.ID,
			Name:             out.call.Name,
			Arguments:        args,
			ThoughtSignature: out.signature,
		}
	} else {
		ret.Text = out.text
		ret.Citations = out.citations
	}

	ev := log.Debug().Str("stop_reason", ret.StopReason).Int("final_text_len", len(ret.Text)).Bool("tool_call", ret.HasToolCall())
	if ret.Usage != nil {
		ev = ev.Int("input_tokens", ret.Usage.InputTokens).Int("output_tokens", ret.Usage.OutputTokens)
	}
	ev.Msg("Gemini RunInference completion metadata")
	return ret, nil
}
