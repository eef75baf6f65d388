package openai

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/jarvis/pkg/events"
	"github.com/go-go-golems/jarvis/pkg/inference/engine"
	"github.com/go-go-golems/jarvis/pkg/steps/ai/settings"
	ai_types "github.com/go-go-golems/jarvis/pkg/steps/ai/types"
	"github.com/go-go-golems/jarvis/pkg/turns"
)

func IsOpenAiEngine(engine string) bool {
	if strings.HasPrefix(engine, "gpt") {
		return true
	}
	if strings.HasPrefix(engine, "text-") {
		return true
	}
	return false
}

func isReasoningModel(engine string) bool {
	m := strings.ToLower(strings.TrimSpace(engine))
	return strings.HasPrefix(m, "o1") ||
		strings.HasPrefix(m, "o3") ||
		strings.HasPrefix(m, "o4") ||
		strings.HasPrefix(m, "gpt-5")
}

// MakeClient builds a go-openai client from the openai API key and the
// optional base URL.
func MakeClient(ss *settings.StepSettings, apiType ai_types.ApiType) (*go_openai.Client, error) {
	apiKey := ss.APIKey(apiType)
	if apiKey == "" {
		return nil, errors.Errorf("missing API key %s-api-key", apiType)
	}
	config := go_openai.DefaultConfig(apiKey)
	if baseURL := ss.BaseURL(apiType); baseURL != "" {
		config.BaseURL = baseURL
	}
	if ss.Client != nil {
		config.HTTPClient = ss.Client.Client()
	}
	return go_openai.NewClientWithConfig(config), nil
}

func convertTools(defs []engine.ToolDefinition) []go_openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	ret := make([]go_openai.Tool, 0, len(defs))
	for _, td := range defs {
		ret = append(ret, go_openai.Tool{
			Type: go_openai.ToolTypeFunction,
			Function: &go_openai.FunctionDefinition{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  td.Parameters,
			},
		})
	}
	return ret
}

// messageParts renders turn parts as chat content. Images become data URLs;
// other media is described in text since chat completions cannot carry it.
func messageParts(parts []turns.Part) []go_openai.ChatMessagePart {
	ret := make([]go_openai.ChatMessagePart, 0, len(parts))
	for _, p := range parts {
		if p.IsText() {
			ret = append(ret, go_openai.ChatMessagePart{Type: go_openai.ChatMessagePartTypeText, Text: p.Text()})
			continue
		}
		m, _ := p.Media()
		switch {
		case strings.HasPrefix(m.MIMEType, "image/") && len(m.Data) > 0:
			url := fmt.Sprintf("data:%s;base64,%s", m.MIMEType, base64.StdEncoding.EncodeToString(m.Data))
			ret = append(ret, go_openai.ChatMessagePart{
				Type:     go_openai.ChatMessagePartTypeImageURL,
				ImageURL: &go_openai.ChatMessageImageURL{URL: url, Detail: go_openai.ImageURLDetailAuto},
			})
		case strings.HasPrefix(m.MIMEType, "image/") && m.URI != "":
			ret = append(ret, go_openai.ChatMessagePart{
				Type:     go_openai.ChatMessagePartTypeImageURL,
				ImageURL: &go_openai.ChatMessageImageURL{URL: m.URI, Detail: go_openai.ImageURLDetailAuto},
			})
		default:
			ret = append(ret, go_openai.ChatMessagePart{
				Type: go_openai.ChatMessagePartTypeText,
				Text: fmt.Sprintf("[%s attachment]", m.MIMEType),
			})
		}
	}
	return ret
}

func textOnly(parts []go_openai.ChatMessagePart) (string, bool) {
	var texts []string
	for _, p := range parts {
		if p.Type != go_openai.ChatMessagePartTypeText {
			return "", false
		}
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "\n"), true
}

// convertMessages maps the model-facing history onto chat messages. A tool
// result must follow the assistant message carrying its call, which the agent
// loop guarantees.
func convertMessages(systemPrompt string, msgs []engine.Message) ([]go_openai.ChatCompletionMessage, error) {
	ret := make([]go_openai.ChatCompletionMessage, 0, len(msgs)+1)
	if systemPrompt != "" {
		ret = append(ret, go_openai.ChatCompletionMessage{Role: go_openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, m := range msgs {
		switch {
		case m.ToolCall != nil:
			args, err := json.Marshal(m.ToolCall.Arguments)
			if err != nil {
				return nil, errors.Wrapf(err, "marshal arguments of %s", m.ToolCall.Name)
			}
			ret = append(ret, go_openai.ChatCompletionMessage{
				Role: go_openai.ChatMessageRoleAssistant,
				ToolCalls: []go_openai.ToolCall{{
					ID:       m.ToolCall.ID,
					Type:     go_openai.ToolTypeFunction,
					Function: go_openai.FunctionCall{Name: m.ToolCall.Name, Arguments: string(args)},
				}},
			})
		case m.ToolResult != nil:
			content, err := json.Marshal(m.ToolResult.Response)
			if err != nil {
				return nil, errors.Wrapf(err, "marshal observation of %s", m.ToolResult.Name)
			}
			ret = append(ret, go_openai.ChatCompletionMessage{
				Role:       go_openai.ChatMessageRoleTool,
				Name:       m.ToolResult.Name,
				ToolCallID: m.ToolResult.ID,
				Content:    string(content),
			})
		default:
			role := go_openai.ChatMessageRoleUser
			if m.Role == turns.RoleModel {
				role = go_openai.ChatMessageRoleAssistant
			}
			parts := messageParts(m.Parts)
			if len(parts) == 0 {
				continue
			}
			// assistant messages cannot carry images
			if text, ok := textOnly(parts); ok || role == go_openai.ChatMessageRoleAssistant {
				if !ok {
					text = describeParts(parts)
				}
				ret = append(ret, go_openai.ChatCompletionMessage{Role: role, Content: text})
				continue
			}
			ret = append(ret, go_openai.ChatCompletionMessage{Role: role, MultiContent: parts})
		}
	}
	return ret, nil
}

func describeParts(parts []go_openai.ChatMessagePart) string {
	var texts []string
	for _, p := range parts {
		if p.Type == go_openai.ChatMessagePartTypeText {
			texts = append(texts, p.Text)
		} else {
			texts = append(texts, "[image]")
		}
	}
	return strings.Join(texts, "\n")
}

func usageFromResponse(u go_openai.Usage) *events.Usage {
	if u.PromptTokens == 0 && u.CompletionTokens == 0 {
		return nil
	}
	ret := &events.Usage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens}
	if u.PromptTokensDetails != nil {
		ret.CachedTokens = u.PromptTokensDetails.CachedTokens
	}
	return ret
}
