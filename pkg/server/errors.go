package server

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/go-go-golems/jarvis/pkg/agent"
	"github.com/go-go-golems/jarvis/pkg/conversation"
	"github.com/go-go-golems/jarvis/pkg/inference/session"
	"github.com/go-go-golems/jarvis/pkg/knowledge"
	"github.com/go-go-golems/jarvis/pkg/persistence"
)

// APIError carries the status code and the user-facing message of a failed
// request.
type APIError struct {
	Code    int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func NewBadRequestError(message string, err error) *APIError {
	return &APIError{Code: http.StatusBadRequest, Message: message, Err: err}
}

func NewNotFoundError(message string, err error) *APIError {
	return &APIError{Code: http.StatusNotFound, Message: message, Err: err}
}

func NewConflictError(message string, err error) *APIError {
	return &APIError{Code: http.StatusConflict, Message: message, Err: err}
}

func NewInternalServerError(message string, err error) *APIError {
	return &APIError{Code: http.StatusInternalServerError, Message: message, Err: err}
}

// classify maps domain errors onto API errors.
func classify(message string, err error) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, agent.ErrEmptySubmission),
		errors.Is(err, agent.ErrUnknownModel),
		errors.Is(err, conversation.ErrEmptyTurn),
		errors.Is(err, knowledge.ErrRuleFormat),
		errors.Is(err, knowledge.ErrInvalidCondition),
		errors.Is(err, knowledge.ErrEmptyFact),
		errors.Is(err, persistence.ErrInvalidTheme):
		return NewBadRequestError(message, err)
	case errors.Is(err, conversation.ErrUnknownConversation):
		return NewNotFoundError(message, err)
	case errors.Is(err, session.ErrSessionAlreadyActive):
		return NewConflictError(message, err)
	default:
		return NewInternalServerError(message, err)
	}
}
