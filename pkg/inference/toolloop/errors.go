package toolloop

import (
	"fmt"

	"github.com/pkg/errors"
)

// OrchestrationTransportError is a failure of the model decision request
// itself. It ends the run.
type OrchestrationTransportError struct {
	Iteration int
	Cause     error
}

func (e *OrchestrationTransportError) Error() string {
	return fmt.Sprintf("model request %d failed: %v", e.Iteration, e.Cause)
}

func (e *OrchestrationTransportError) Unwrap() error {
	return e.Cause
}

// IterationLimitExceeded is the policy cutoff reached when the model keeps
// invoking capabilities.
type IterationLimitExceeded struct {
	MaxIterations int
}

func (e *IterationLimitExceeded) Error() string {
	return fmt.Sprintf("max iterations (%d) reached", e.MaxIterations)
}

// ErrorTurnText is the user-visible text of a transport failure turn.
func ErrorTurnText(err error) string {
	cause := err
	var te *OrchestrationTransportError
	if errors.As(err, &te) {
		cause = te.Cause
	}
	return fmt.Sprintf("Sorry, an error occurred: %v", cause)
}
