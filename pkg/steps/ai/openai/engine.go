package openai

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/jarvis/pkg/inference/engine"
	"github.com/go-go-golems/jarvis/pkg/steps/ai/settings"
)

// ChatCompleter is implemented by *go_openai.Client.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req go_openai.ChatCompletionRequest) (go_openai.ChatCompletionResponse, error)
}

// Engine drives the agent loop with an OpenAI-compatible chat completions
// API. It never returns citations.
type Engine struct {
	client   ChatCompleter
	settings *settings.ChatSettings
}

var _ engine.Engine = (*Engine)(nil)

func NewEngine(client ChatCompleter, chat *settings.ChatSettings) (*Engine, error) {
	if client == nil {
		return nil, errors.New("openai engine needs a client")
	}
	if chat == nil || chat.Engine == "" {
		return nil, errors.New("no engine specified")
	}
	return &Engine{client: client, settings: chat}, nil
}

func (e *Engine) makeRequest(req *engine.Request) (go_openai.ChatCompletionRequest, error) {
	model := req.Model
	if model == "" {
		model = e.settings.Engine
	}
	msgs, err := convertMessages(req.SystemPrompt, req.Messages)
	if err != nil {
		return go_openai.ChatCompletionRequest{}, err
	}
	ret := go_openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
		Tools:    convertTools(req.Tools),
	}
	if len(ret.Tools) > 0 {
		if req.ToolChoice == engine.ToolChoiceNone {
			ret.ToolChoice = "none"
		} else {
			ret.ToolChoice = "auto"
		}
	}

	s := e.settings
	if isReasoningModel(model) {
		if s.MaxResponseTokens != nil {
			ret.MaxCompletionTokens = *s.MaxResponseTokens
		}
		return ret, nil
	}
	if s.MaxResponseTokens != nil {
		ret.MaxTokens = *s.MaxResponseTokens
	}
	if s.Temperature != nil {
		ret.Temperature = float32(*s.Temperature)
	}
	if s.TopP != nil {
		ret.TopP = float32(*s.TopP)
	}
	return ret, nil
}

func (e *Engine) RunInference(ctx context.Context, req *engine.Request) (*engine.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	chatReq, err := e.makeRequest(req)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("model", chatReq.Model).Int("messages", len(chatReq.Messages)).Int("tools", len(chatReq.Tools)).Msg("OpenAI RunInference started")

	resp, err := e.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, errors.Wrap(err, "openai chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	choice := resp.Choices[0]
	ret := &engine.Response{
		Model:      resp.Model,
		StopReason: string(choice.FinishReason),
		Usage:      usageFromResponse(resp.Usage),
	}
	if ret.Model == "" {
		ret.Model = chatReq.Model
	}
	if len(choice.Message.ToolCalls) > 0 {
		tc := choice.Message.ToolCalls[0]
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				// handed to the capability set, which reports invalid arguments to the model
				log.Warn().Err(err).Str("tool", tc.Function.Name).Msg("could not decode tool call arguments")
				args = map[string]any{}
			}
		}
		ret.ToolCall = &engine.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args}
		if len(choice.Message.ToolCalls) > 1 {
			log.Debug().Int("tool_calls", len(choice.Message.ToolCalls)).Msg("only the first tool call is executed")
		}
	} else {
		ret.Text = choice.Message.Content
	}

	ev := log.Debug().Str("stop_reason", ret.StopReason).Int("final_text_len", len(ret.Text)).Bool("tool_call", ret.HasToolCall())
	if ret.Usage != nil {
		ev = ev.Int("input_tokens", ret.Usage.InputTokens).Int("output_tokens", ret.Usage.OutputTokens)
	}
	ev.Msg("OpenAI RunInference completion metadata")
	return ret, nil
}
