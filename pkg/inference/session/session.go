package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jarvis/pkg/helpers"
	"github.com/go-go-golems/jarvis/pkg/inference/toolloop"
)

var (
	ErrSessionNil           = errors.New("session is nil")
	ErrSessionBuilderNil    = errors.New("session builder is nil")
	ErrSessionAlreadyActive = errors.New("conversation already has an active run")
	ErrSessionNoActive      = errors.New("conversation has no active run")
	ErrConversationIDEmpty  = errors.New("session has empty ConversationID")
	ErrConversationMismatch = errors.New("run is for another conversation")
	ErrReservationReleased  = errors.New("session reservation was released")
)

// Session guards the runs of one conversation.
//
// It owns the invariant that only one agent loop run is active at a time.
// Turns live in the conversation store, not here.
type Session struct {
	ConversationID string

	Builder EngineBuilder

	mu       sync.Mutex
	active   *ExecutionHandle
	reserved *Reservation
}

func NewSession(conversationID string, builder EngineBuilder) *Session {
	return &Session{
		ConversationID: conversationID,
		Builder:        builder,
	}
}

// IsRunning reports whether the conversation currently has an active run or
// a pending reservation.
func (s *Session) IsRunning() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busyLocked()
}

func (s *Session) busyLocked() bool {
	return s.reserved != nil || (s.active != nil && s.active.IsRunning())
}

// Reservation claims a session before its run starts, so that the caller can
// append the user turn (or answer without a run) while no other submission
// gets in. It is released by Release or turned into the active run by
// StartInference.
type Reservation struct {
	s *Session
}

// Reserve claims the session. It fails with ErrSessionAlreadyActive while a
// run or another reservation holds it.
func (s *Session) Reserve() (*Reservation, error) {
	if s == nil {
		return nil, ErrSessionNil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busyLocked() {
		return nil, ErrSessionAlreadyActive
	}
	r := &Reservation{s: s}
	s.reserved = r
	return r, nil
}

// Release gives the session back. It is a no-op once the reservation has
// started a run or was already released.
func (r *Reservation) Release() {
	if r == nil || r.s == nil {
		return
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.reserved == r {
		r.s.reserved = nil
	}
}

// StartInference starts the run that owns the reservation.
func (r *Reservation) StartInference(ctx context.Context, run toolloop.Run, emit toolloop.TurnEmitter) (*ExecutionHandle, error) {
	if r == nil || r.s == nil {
		return nil, ErrSessionNil
	}
	return r.s.start(ctx, run, emit, r)
}

// Active returns the in-flight run, or nil.
func (s *Session) Active() *ExecutionHandle {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil && s.active.IsRunning() {
		return s.active
	}
	return nil
}

// StartInference starts an agent loop run asynchronously and returns an
// ExecutionHandle. It fails with ErrSessionAlreadyActive while another run
// of the same conversation is in flight or reserved.
func (s *Session) StartInference(ctx context.Context, run toolloop.Run, emit toolloop.TurnEmitter) (*ExecutionHandle, error) {
	return s.start(ctx, run, emit, nil)
}

func (s *Session) start(ctx context.Context, run toolloop.Run, emit toolloop.TurnEmitter, owner *Reservation) (*ExecutionHandle, error) {
	if s == nil {
		return nil, ErrSessionNil
	}
	if s.ConversationID == "" {
		return nil, ErrConversationIDEmpty
	}
	if s.Builder == nil {
		return nil, ErrSessionBuilderNil
	}
	if run.ConversationID == "" {
		run.ConversationID = s.ConversationID
	}
	if run.ConversationID != s.ConversationID {
		return nil, ErrConversationMismatch
	}
	if run.RunID == "" {
		run.RunID = helpers.NewRunID()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	err := s.claimableLocked(owner)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	runner, err := s.Builder.Build(ctx, s.ConversationID)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(WithSessionMeta(ctx, s.ConversationID, run.RunID))
	handle := newExecutionHandle(s.ConversationID, run.RunID, cancel)

	s.mu.Lock()
	// Re-check after build: another goroutine may have started a run while we were building.
	if err := s.claimableLocked(owner); err != nil {
		s.mu.Unlock()
		cancel()
		return nil, err
	}
	s.active = handle
	s.reserved = nil
	s.mu.Unlock()

	go func() {
		var (
			out    *toolloop.Outcome
			runErr error
		)
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("conversation_id", s.ConversationID).Msg("session: run panicked")
				runErr = errors.New("agent loop run panicked")
			}
			s.mu.Lock()
			if s.active == handle {
				s.active = nil
			}
			s.mu.Unlock()
			handle.setResult(out, runErr)
		}()

		out, runErr = runner.RunLoop(runCtx, run, emit)
	}()

	return handle, nil
}

func (s *Session) claimableLocked(owner *Reservation) error {
	if s.active != nil && s.active.IsRunning() {
		return ErrSessionAlreadyActive
	}
	if s.reserved != owner {
		if owner != nil {
			return ErrReservationReleased
		}
		return ErrSessionAlreadyActive
	}
	return nil
}

// CancelActive cancels the current active run, if any.
func (s *Session) CancelActive() error {
	if s == nil {
		return ErrSessionNil
	}
	s.mu.Lock()
	h := s.active
	s.mu.Unlock()
	if h == nil || !h.IsRunning() {
		return ErrSessionNoActive
	}
	h.Cancel()
	return nil
}

// Registry hands out one Session per conversation.
type Registry struct {
	builder EngineBuilder

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(builder EngineBuilder) *Registry {
	return &Registry{builder: builder, sessions: map[string]*Session{}}
}

// Get returns the session of conversationID, creating it on first use.
func (r *Registry) Get(conversationID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[conversationID]
	if !ok {
		s = NewSession(conversationID, r.builder)
		r.sessions[conversationID] = s
	}
	return s
}

// Remove cancels any active run of conversationID and forgets its session.
func (r *Registry) Remove(conversationID string) {
	r.mu.Lock()
	s, ok := r.sessions[conversationID]
	delete(r.sessions, conversationID)
	r.mu.Unlock()
	if ok {
		_ = s.CancelActive()
	}
}

// Running returns the ids of conversations with an active run.
func (r *Registry) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, s := range r.sessions {
		if s.IsRunning() {
			ids = append(ids, id)
		}
	}
	return ids
}
