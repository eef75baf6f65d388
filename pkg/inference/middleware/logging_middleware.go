package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jarvis/pkg/inference/engine"
)

// NewLoggingMiddleware logs every decision request and its outcome.
func NewLoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *engine.Request) (*engine.Response, error) {
			lg := logger
			// fall back to global if uninitialized
			if lg.GetLevel() == zerolog.NoLevel {
				lg = log.Logger
			}

			var numToolCalls, numToolResults int
			for _, m := range req.Messages {
				switch {
				case m.ToolCall != nil:
					numToolCalls++
				case m.ToolResult != nil:
					numToolResults++
				}
			}
			lg = lg.With().
				Str("model", req.Model).
				Int("message_count", len(req.Messages)).
				Int("tool_calls", numToolCalls).
				Int("tool_results", numToolResults).
				Int("tools", len(req.Tools)).
				Logger()

			lg.Debug().Msg("engine: starting inference")
			start := time.Now()

			resp, err := next(ctx, req)
			if err != nil {
				lg.Error().Err(err).Dur("duration", time.Since(start)).Msg("engine: inference failed")
				return resp, err
			}

			ev := lg.Debug().Dur("duration", time.Since(start))
			if resp != nil {
				ev = ev.Str("stop_reason", resp.StopReason).Int("text_len", len(resp.Text)).Int("citations", len(resp.Citations))
				if resp.HasToolCall() {
					ev = ev.Str("tool_call", resp.ToolCall.Name)
				}
				if resp.Usage != nil {
					ev = ev.Int("input_tokens", resp.Usage.InputTokens).Int("output_tokens", resp.Usage.OutputTokens)
				}
			}
			ev.Msg("engine: inference completed")
			return resp, nil
		}
	}
}
