package capabilities

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrorKind classifies a failed capability run for observations and metrics.
type ErrorKind string

const (
	ErrorKindNone              ErrorKind = ""
	ErrorKindMissingAttachment ErrorKind = "missing-attachment"
	ErrorKindUnknownCapability ErrorKind = "unknown-capability"
	ErrorKindInvalidArguments  ErrorKind = "invalid-arguments"
	ErrorKindExecution         ErrorKind = "execution"
	ErrorKindPollTimeout       ErrorKind = "poll-timeout"
)

// MissingAttachmentError is returned when an attachment capability runs
// without an attached image.
type MissingAttachmentError struct {
	Capability string
}

func (e *MissingAttachmentError) Error() string {
	return fmt.Sprintf("%s needs an attached image, but none was sent", e.Capability)
}

type UnknownCapabilityError struct {
	Name string
}

func (e *UnknownCapabilityError) Error() string {
	return fmt.Sprintf("unknown capability %q", e.Name)
}

type InvalidArgumentsError struct {
	Capability string
	Problems   []string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %v", e.Capability, e.Problems)
}

// CapabilityExecutionError wraps a provider failure or a recovered panic.
type CapabilityExecutionError struct {
	Capability string
	Cause      error
}

func (e *CapabilityExecutionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Capability, e.Cause)
}

func (e *CapabilityExecutionError) Unwrap() error {
	return e.Cause
}

// PollTimeoutError is returned when a long-running operation did not finish
// within the configured bound.
type PollTimeoutError struct {
	Operation string
	Waited    time.Duration
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("operation %s did not finish after %s", e.Operation, e.Waited)
}

// KindOf classifies err. Nil is ErrorKindNone, unclassified errors are
// ErrorKindExecution.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var missing *MissingAttachmentError
	var unknown *UnknownCapabilityError
	var invalid *InvalidArgumentsError
	var timeout *PollTimeoutError
	switch {
	case errors.As(err, &missing):
		return ErrorKindMissingAttachment
	case errors.As(err, &unknown):
		return ErrorKindUnknownCapability
	case errors.As(err, &invalid):
		return ErrorKindInvalidArguments
	case errors.As(err, &timeout):
		return ErrorKindPollTimeout
	default:
		return ErrorKindExecution
	}
}
