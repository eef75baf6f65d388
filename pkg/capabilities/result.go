package capabilities

import (
	"github.com/go-go-golems/jarvis/pkg/turns"
)

// Result is the outcome of one capability run. Payload is what the model
// observes; Media and Sources are collected for the user-facing answer.
type Result struct {
	Payload map[string]any
	Media   []turns.Part
	Sources []turns.Citation
	Err     error
}

func Success(payload map[string]any, media []turns.Part, sources []turns.Citation) Result {
	return Result{Payload: payload, Media: media, Sources: sources}
}

func Failure(err error) Result {
	return Result{Err: err}
}

func (r Result) Failed() bool {
	return r.Err != nil
}

func (r Result) Kind() ErrorKind {
	return KindOf(r.Err)
}

// Observation is the function response sent back to the model. Failures
// are reported as {"error": ..., "kind": ...} so the model can recover.
func (r Result) Observation() map[string]any {
	if r.Err != nil {
		return map[string]any{
			"error": r.Err.Error(),
			"kind":  string(r.Kind()),
		}
	}
	if r.Payload == nil {
		return map[string]any{}
	}
	return r.Payload
}
