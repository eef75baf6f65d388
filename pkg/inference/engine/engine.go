package engine

import (
	"context"
)

// Engine is the remote decision model of the agent loop. Given the
// model-facing history and the available tools, it answers with either a
// final text or a single tool call. Engines handle provider-specific logic
// and publish their own inference events to the sinks found in ctx.
type Engine interface {
	RunInference(ctx context.Context, req *Request) (*Response, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, req *Request) (*Response, error)

func (f EngineFunc) RunInference(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
