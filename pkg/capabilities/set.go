package capabilities

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jarvis/pkg/inference/engine"
	"github.com/go-go-golems/jarvis/pkg/turns"
)

// Set executes capability invocations against a Provider.
type Set struct {
	provider Provider
	catalog  *Catalog
}

// NewSet binds a provider to a catalog. A nil catalog is the default one.
func NewSet(provider Provider, catalog *Catalog) *Set {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Set{provider: provider, catalog: catalog}
}

func (s *Set) Catalog() *Catalog {
	return s.catalog
}

type currentCallKey struct{}

// WithCurrentCall annotates ctx with the invocation being executed.
func WithCurrentCall(ctx context.Context, call engine.ToolCall) context.Context {
	return context.WithValue(ctx, currentCallKey{}, call)
}

// CurrentCallFromContext returns the invocation being executed, if any.
func CurrentCallFromContext(ctx context.Context) (engine.ToolCall, bool) {
	call, ok := ctx.Value(currentCallKey{}).(engine.ToolCall)
	return call, ok
}

// Execute runs one invocation. It never panics and never returns a Go
// error: failures are reported in the Result so the loop can feed them
// back to the model.
func (s *Set) Execute(ctx context.Context, call engine.ToolCall, attachment *Attachment) (res Result) {
	start := time.Now()
	logger := log.With().Str("capability", call.Name).Str("call_id", call.ID).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("capability panicked")
			res = Failure(&CapabilityExecutionError{Capability: call.Name, Cause: errors.Errorf("panic: %v", r)})
		}
		logger.Debug().
			Dur("duration", time.Since(start)).
			Str("error_kind", string(res.Kind())).
			Msg("capability finished")
	}()

	d, ok := s.catalog.Lookup(call.Name)
	if !ok {
		return Failure(&UnknownCapabilityError{Name: call.Name})
	}
	if d.RequiresAttachment && attachment == nil {
		return Failure(&MissingAttachmentError{Capability: d.Name})
	}
	if err := validateArgs(d, call.Arguments); err != nil {
		return Failure(err)
	}

	ctx = WithCurrentCall(ctx, call)
	logger.Debug().Interface("arguments", call.Arguments).Msg("executing capability")

	switch d.ID {
	case GenerateText, GenerateComplexText, SearchGroundedText, MapsGroundedText:
		var args PromptArgs
		if err := decodeArgs(call.Arguments, &args); err != nil {
			return Failure(&InvalidArgumentsError{Capability: d.Name, Problems: []string{err.Error()}})
		}
		var out *TextOutput
		var err error
		switch d.ID {
		case GenerateText:
			out, err = s.provider.GenerateText(ctx, args.Prompt)
		case GenerateComplexText:
			out, err = s.provider.GenerateComplexText(ctx, args.Prompt)
		case SearchGroundedText:
			out, err = s.provider.SearchGroundedText(ctx, args.Prompt)
		default:
			out, err = s.provider.MapsGroundedText(ctx, args.Prompt)
		}
		return textResult(d, out, err)

	case GenerateImage:
		var args ImageArgs
		if err := decodeArgs(call.Arguments, &args); err != nil {
			return Failure(&InvalidArgumentsError{Capability: d.Name, Problems: []string{err.Error()}})
		}
		if args.AspectRatio == "" {
			args.AspectRatio = DefaultImageAspectRatio
		}
		out, err := s.provider.GenerateImage(ctx, args.Prompt, args.AspectRatio)
		return mediaResult(d, out, err)

	case AnalyzeImage:
		var args AttachmentArgs
		if err := decodeArgs(call.Arguments, &args); err != nil {
			return Failure(&InvalidArgumentsError{Capability: d.Name, Problems: []string{err.Error()}})
		}
		out, err := s.provider.AnalyzeImage(ctx, args.Prompt, attachment)
		return textResult(d, out, err)

	case EditImage:
		var args AttachmentArgs
		if err := decodeArgs(call.Arguments, &args); err != nil {
			return Failure(&InvalidArgumentsError{Capability: d.Name, Problems: []string{err.Error()}})
		}
		out, err := s.provider.EditImage(ctx, args.Prompt, attachment)
		return mediaResult(d, out, err)

	case GenerateVideoFromText:
		var args VideoArgs
		if err := decodeArgs(call.Arguments, &args); err != nil {
			return Failure(&InvalidArgumentsError{Capability: d.Name, Problems: []string{err.Error()}})
		}
		if args.AspectRatio == "" {
			args.AspectRatio = DefaultVideoAspectRatio
		}
		out, err := s.provider.GenerateVideo(ctx, args.Prompt, nil, args.AspectRatio)
		return mediaResult(d, out, err)

	case GenerateVideoFromImage:
		var args VideoFromImageArgs
		if err := decodeArgs(call.Arguments, &args); err != nil {
			return Failure(&InvalidArgumentsError{Capability: d.Name, Problems: []string{err.Error()}})
		}
		if args.AspectRatio == "" {
			args.AspectRatio = DefaultVideoAspectRatio
		}
		out, err := s.provider.GenerateVideo(ctx, args.Prompt, attachment, args.AspectRatio)
		return mediaResult(d, out, err)

	case TextToSpeech:
		var args SpeechArgs
		if err := decodeArgs(call.Arguments, &args); err != nil {
			return Failure(&InvalidArgumentsError{Capability: d.Name, Problems: []string{err.Error()}})
		}
		out, err := s.provider.TextToSpeech(ctx, args.Text)
		return mediaResult(d, out, err)

	case Unknown:
		fallthrough
	default:
		return Failure(&UnknownCapabilityError{Name: call.Name})
	}
}

func wrapErr(d Descriptor, err error) error {
	switch err.(type) {
	case *PollTimeoutError, *MissingAttachmentError, *InvalidArgumentsError, *CapabilityExecutionError:
		return err
	}
	return &CapabilityExecutionError{Capability: d.Name, Cause: err}
}

func textResult(d Descriptor, out *TextOutput, err error) Result {
	if err != nil {
		return Failure(wrapErr(d, err))
	}
	if out == nil {
		out = &TextOutput{}
	}
	return Success(map[string]any{"text": out.Text}, nil, out.Sources)
}

// mediaResult keeps the bytes out of the observation; the model only learns
// that media was produced.
func mediaResult(d Descriptor, out *MediaOutput, err error) Result {
	if err != nil {
		return Failure(wrapErr(d, err))
	}
	if out == nil || (len(out.Data) == 0 && out.URI == "") {
		msg := "no media was produced"
		if out != nil && out.Message != "" {
			msg = out.Message
		}
		return Failure(&CapabilityExecutionError{Capability: d.Name, Cause: errors.New(msg)})
	}

	var part turns.Part
	payload := map[string]any{"mimeType": out.MIMEType}
	if len(out.Data) > 0 {
		part = turns.NewMediaPart(out.MIMEType, out.Data)
		payload["bytes"] = len(out.Data)
	} else {
		part = turns.NewMediaURIPart(out.MIMEType, out.URI)
		payload["uri"] = out.URI
	}
	if out.Message != "" {
		payload["message"] = out.Message
	} else {
		payload["message"] = fmt.Sprintf("%s produced %s and it will be shown to the user", d.Name, out.MIMEType)
	}
	return Success(payload, []turns.Part{part}, nil)
}
