package middleware

import (
	"bytes"
	"context"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jarvis/pkg/inference/engine"
)

// PromptData is available to system prompt templates.
type PromptData struct {
	Model string
	Tools []string
}

// RenderSystemPrompt executes a system prompt template with the sprig
// function map.
func RenderSystemPrompt(tmpl string, data PromptData) (string, error) {
	t, err := template.New("system-prompt").Funcs(sprig.TxtFuncMap()).Parse(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "parse system prompt template")
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "render system prompt template")
	}
	return strings.TrimSpace(buf.String()), nil
}

// NewSystemPromptMiddleware renders tmpl for each request and puts it in
// front of the request's own system prompt. A request that already carries
// the rendered prompt is left untouched.
func NewSystemPromptMiddleware(tmpl string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *engine.Request) (*engine.Response, error) {
			if tmpl == "" {
				return next(ctx, req)
			}
			data := PromptData{Model: req.Model}
			for _, td := range req.Tools {
				data.Tools = append(data.Tools, td.Name)
			}
			prompt, err := RenderSystemPrompt(tmpl, data)
			if err != nil {
				return nil, err
			}

			out := *req
			switch {
			case out.SystemPrompt == "":
				out.SystemPrompt = prompt
			case strings.Contains(out.SystemPrompt, prompt):
			default:
				out.SystemPrompt = prompt + "\n\n" + out.SystemPrompt
			}
			log.Debug().Int("prompt_len", len(out.SystemPrompt)).Msg("systemprompt: applied")
			return next(ctx, &out)
		}
	}
}
