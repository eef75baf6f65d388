package session

import (
	"context"
	"errors"
	"sync"

	"github.com/go-go-golems/jarvis/pkg/inference/toolloop"
)

var ErrExecutionHandleNil = errors.New("execution handle is nil")

// ExecutionHandle represents a single in-flight agent loop run.
//
// It is cancelable and waitable. The run is always driven by context cancellation.
type ExecutionHandle struct {
	ConversationID string
	RunID          string

	done chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	out    *toolloop.Outcome
	err    error
}

func newExecutionHandle(conversationID, runID string, cancel context.CancelFunc) *ExecutionHandle {
	return &ExecutionHandle{
		ConversationID: conversationID,
		RunID:          runID,
		done:           make(chan struct{}),
		cancel:         cancel,
	}
}

func (h *ExecutionHandle) setResult(out *toolloop.Outcome, err error) {
	h.mu.Lock()
	h.out = out
	h.err = err
	cancel := h.cancel
	h.cancel = nil
	close(h.done)
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Cancel cancels the in-flight run. It is safe to call multiple times.
func (h *ExecutionHandle) Cancel() {
	if h == nil {
		return
	}
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed when the run has finished.
func (h *ExecutionHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the run completes and returns its outcome.
func (h *ExecutionHandle) Wait() (*toolloop.Outcome, error) {
	if h == nil {
		return nil, ErrExecutionHandleNil
	}
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.out, h.err
}

// IsRunning reports whether the run appears to still be running.
func (h *ExecutionHandle) IsRunning() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}
