package enginebuilder

import (
	"github.com/go-go-golems/jarvis/pkg/events"
	"github.com/go-go-golems/jarvis/pkg/inference/engine"
	"github.com/go-go-golems/jarvis/pkg/inference/middleware"
	"github.com/go-go-golems/jarvis/pkg/inference/toolloop"
)

type Option func(*Builder)

func New(opts ...Option) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func WithBase(base engine.Engine) Option {
	return func(b *Builder) {
		b.Base = base
	}
}

func WithMiddlewares(mws ...middleware.Middleware) Option {
	return func(b *Builder) {
		b.Middlewares = append(b.Middlewares, mws...)
	}
}

func WithExecutor(exec toolloop.Executor) Option {
	return func(b *Builder) {
		b.Executor = exec
	}
}

func WithLoopConfig(cfg toolloop.LoopConfig) Option {
	return func(b *Builder) {
		b.LoopConfig = &cfg
	}
}

func WithEventSinks(sinks ...events.EventSink) Option {
	return func(b *Builder) {
		b.EventSinks = append(b.EventSinks, sinks...)
	}
}

func WithTransitionHook(hook toolloop.TransitionHook) Option {
	return func(b *Builder) {
		b.TransitionHook = hook
	}
}

func WithPersister(p OutcomePersister) Option {
	return func(b *Builder) {
		b.Persister = p
	}
}
