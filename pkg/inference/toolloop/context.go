package toolloop

import (
	"context"
)

// TransitionHook observes state transitions of a run.
type TransitionHook func(ctx context.Context, from, to State)

type transitionHookKey struct{}

// WithTransitionHook attaches a transition hook to the context.
func WithTransitionHook(ctx context.Context, hook TransitionHook) context.Context {
	if hook == nil {
		return ctx
	}
	return context.WithValue(ctx, transitionHookKey{}, hook)
}

// TransitionHookFromContext returns the hook attached to the context, if any.
func TransitionHookFromContext(ctx context.Context) (TransitionHook, bool) {
	h, ok := ctx.Value(transitionHookKey{}).(TransitionHook)
	return h, ok && h != nil
}
