package live

import (
	"context"
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jarvis/pkg/events"
	"github.com/go-go-golems/jarvis/pkg/helpers"
)

type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)

var (
	ErrAlreadyStarted = errors.New("live session already started")
	ErrNotStreaming   = errors.New("live session is not streaming")
)

type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerModel Speaker = "model"
)

// Transcript is the accumulated transcription of the current turn of one
// speaker.
type Transcript struct {
	Speaker Speaker
	Text    string
}

const (
	defaultAudioQueue      = 256
	defaultTranscriptQueue = 64
)

// Session is one live voice conversation. Microphone chunks are read from
// the channel given to Start; model audio is queued on Audio() for playback
// and transcriptions are delivered on Transcripts(). Both channels are closed
// once the session is Closed.
type Session struct {
	ID        string
	transport Transport
	cfg       Config

	audio       chan AudioChunk
	transcripts chan Transcript
	done        chan struct{}

	mu       sync.Mutex
	state    State
	conn     Conn
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	runErr   *multierror.Error
	stopping bool
	stopErr  error
	onState  func(from, to State)
	sinks    []events.EventSink
}

type Option func(*Session)

// WithStateHook is called on every state change.
func WithStateHook(f func(from, to State)) Option {
	return func(s *Session) { s.onState = f }
}

// WithEventSinks publishes a live-state event per state change.
func WithEventSinks(sinks ...events.EventSink) Option {
	return func(s *Session) { s.sinks = append(s.sinks, sinks...) }
}

func WithAudioQueue(n int) Option {
	return func(s *Session) { s.audio = make(chan AudioChunk, n) }
}

func NewSession(transport Transport, cfg Config, opts ...Option) *Session {
	s := &Session{
		ID:          helpers.NewRunID(),
		transport:   transport,
		cfg:         cfg,
		audio:       make(chan AudioChunk, defaultAudioQueue),
		transcripts: make(chan Transcript, defaultTranscriptQueue),
		done:        make(chan struct{}),
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Audio is the playback queue of model audio.
func (s *Session) Audio() <-chan AudioChunk { return s.audio }

func (s *Session) Transcripts() <-chan Transcript { return s.transcripts }

// Done is closed once the session reached Closed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) setStateLocked(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	log.Debug().Str("live_session", s.ID).Str("from", string(from)).Str("to", string(to)).Msg("live state")
	if s.onState != nil {
		s.onState(from, to)
	}
	ev := events.NewLiveStateEvent(events.NewMetadata("", s.ID, 0), string(from), string(to))
	for _, sink := range s.sinks {
		if err := sink.PublishEvent(ev); err != nil {
			log.Warn().Err(err).Str("live_session", s.ID).Msg("could not publish live state")
		}
	}
}

// Start connects and begins streaming mic to the model. It returns once the
// connection is established.
func (s *Session) Start(ctx context.Context, mic <-chan []byte) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	conn, err := s.transport.Connect(ctx, s.cfg)
	if err != nil {
		s.mu.Lock()
		s.runErr = multierror.Append(s.runErr, errors.Wrap(err, "connect"))
		s.mu.Unlock()
		_ = s.Stop()
		return errors.Wrap(err, "live connect")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		cancel()
		_ = conn.Close()
		return ErrNotStreaming
	}
	s.conn = conn
	s.cancel = cancel
	s.setStateLocked(StateStreaming)
	s.wg.Add(2)
	s.mu.Unlock()

	go s.sendLoop(runCtx, conn, mic)
	go s.receiveLoop(runCtx, conn)
	return nil
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.runErr = multierror.Append(s.runErr, err)
	s.mu.Unlock()
	go func() {
		_ = s.Stop()
	}()
}

func (s *Session) sendLoop(ctx context.Context, conn Conn, mic <-chan []byte) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-mic:
			if !ok {
				return
			}
			if err := conn.SendAudio(ctx, AudioChunk{MIMEType: InputMIMEType, Data: data}); err != nil {
				if ctx.Err() == nil {
					s.fail(errors.Wrap(err, "send audio"))
				}
				return
			}
		}
	}
}

func (s *Session) receiveLoop(ctx context.Context, conn Conn) {
	defer s.wg.Done()
	var input, output string
	for {
		msg, err := conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				go func() {
					_ = s.Stop()
				}()
				return
			}
			s.fail(errors.Wrap(err, "receive"))
			return
		}
		if msg == nil {
			continue
		}

		if msg.InputTranscription != "" {
			input += msg.InputTranscription
			if !s.deliver(ctx, Transcript{Speaker: SpeakerUser, Text: input}) {
				return
			}
		}
		if msg.OutputTranscription != "" {
			output += msg.OutputTranscription
			if !s.deliver(ctx, Transcript{Speaker: SpeakerModel, Text: output}) {
				return
			}
		}
		if msg.TurnComplete {
			input, output = "", ""
		}
		for _, chunk := range msg.Audio {
			if len(chunk.Data) == 0 {
				continue
			}
			select {
			case s.audio <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if msg.Interrupted {
			s.Interrupt()
		}
	}
}

func (s *Session) deliver(ctx context.Context, t Transcript) bool {
	select {
	case s.transcripts <- t:
		return true
	case <-ctx.Done():
		return false
	}
}

// Interrupt drops all queued playback audio and returns the number of
// chunks dropped.
func (s *Session) Interrupt() int {
	n := 0
	for {
		select {
		case _, ok := <-s.audio:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

// Stop releases the session. Every release step runs even if an earlier one
// fails; the errors, including those that ended the stream, are returned
// together. Stop is idempotent.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		<-s.done
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.stopErr
	}
	s.stopping = true
	s.setStateLocked(StateClosing)
	conn, cancel := s.conn, s.cancel
	s.mu.Unlock()

	var result *multierror.Error
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "close connection"))
		}
	}
	s.wg.Wait()

	dropped := s.Interrupt()
	close(s.audio)
	close(s.transcripts)

	s.mu.Lock()
	if s.runErr != nil {
		result = multierror.Append(result, s.runErr.Errors...)
	}
	s.stopErr = result.ErrorOrNil()
	s.setStateLocked(StateClosed)
	s.mu.Unlock()
	close(s.done)

	log.Debug().Str("live_session", s.ID).Int("dropped_audio_chunks", dropped).Msg("live session stopped")
	return s.stopErr
}
