package live

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeConn struct {
	mu       sync.Mutex
	sent     []AudioChunk
	incoming chan *Message
	closed   chan struct{}
	once     sync.Once
	closeErr error
	recvErr  error
}

func newFakeConn() *fakeConn {
	return &fakeConn{incoming: make(chan *Message, 16), closed: make(chan struct{})}
}

func (c *fakeConn) SendAudio(_ context.Context, chunk AudioChunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, chunk)
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) (*Message, error) {
	select {
	case m, ok := <-c.incoming:
		if !ok {
			if c.recvErr != nil {
				return nil, c.recvErr
			}
			return nil, io.EOF
		}
		return m, nil
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return c.closeErr
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type fakeTransport struct {
	conn *fakeConn
	err  error
	cfg  Config
}

func (t *fakeTransport) Connect(_ context.Context, cfg Config) (Conn, error) {
	t.cfg = cfg
	if t.err != nil {
		return nil, t.err
	}
	return t.conn, nil
}

func TestSession_StreamsAudioAndTranscripts(t *testing.T) {
	conn := newFakeConn()
	tr := &fakeTransport{conn: conn}
	var states []State
	var mu sync.Mutex
	s := NewSession(tr, Config{Model: "live-model", Voice: "Zephyr"}, WithStateHook(func(_, to State) {
		mu.Lock()
		states = append(states, to)
		mu.Unlock()
	}))

	mic := make(chan []byte, 4)
	require.NoError(t, s.Start(context.Background(), mic))
	assert.Equal(t, StateStreaming, s.State())
	assert.Equal(t, "live-model", tr.cfg.Model)

	mic <- []byte{1, 2}
	mic <- []byte{3, 4}
	require.Eventually(t, func() bool { return conn.sentCount() == 2 }, time.Second, 5*time.Millisecond)
	conn.mu.Lock()
	assert.Equal(t, InputMIMEType, conn.sent[0].MIMEType)
	conn.mu.Unlock()

	conn.incoming <- &Message{InputTranscription: "what "}
	conn.incoming <- &Message{InputTranscription: "time is it"}
	conn.incoming <- &Message{OutputTranscription: "It is noon", Audio: []AudioChunk{{MIMEType: "audio/pcm;rate=24000", Data: []byte{9}}}}
	conn.incoming <- &Message{TurnComplete: true}
	conn.incoming <- &Message{InputTranscription: "thanks"}

	assert.Equal(t, Transcript{Speaker: SpeakerUser, Text: "what "}, <-s.Transcripts())
	assert.Equal(t, Transcript{Speaker: SpeakerUser, Text: "what time is it"}, <-s.Transcripts())
	assert.Equal(t, Transcript{Speaker: SpeakerModel, Text: "It is noon"}, <-s.Transcripts())
	assert.Equal(t, Transcript{Speaker: SpeakerUser, Text: "thanks"}, <-s.Transcripts())
	assert.Equal(t, []byte{9}, (<-s.Audio()).Data)

	require.NoError(t, s.Stop())
	assert.Equal(t, StateClosed, s.State())
	_, ok := <-s.Audio()
	assert.False(t, ok)

	mu.Lock()
	assert.Equal(t, []State{StateConnecting, StateStreaming, StateClosing, StateClosed}, states)
	mu.Unlock()
}

func TestSession_InterruptDrainsPlaybackQueue(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(&fakeTransport{conn: conn}, Config{})
	require.NoError(t, s.Start(context.Background(), nil))

	conn.incoming <- &Message{Audio: []AudioChunk{{Data: []byte{1}}, {Data: []byte{2}}, {Data: []byte{3}}}}
	conn.incoming <- &Message{OutputTranscription: "marker"}
	<-s.Transcripts()

	assert.Equal(t, 3, s.Interrupt())
	assert.Equal(t, 0, s.Interrupt())
	require.NoError(t, s.Stop())
}

func TestSession_ServerInterruptionDrainsQueue(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(&fakeTransport{conn: conn}, Config{})
	require.NoError(t, s.Start(context.Background(), nil))

	conn.incoming <- &Message{Audio: []AudioChunk{{Data: []byte{1}}, {Data: []byte{2}}}}
	conn.incoming <- &Message{Interrupted: true}
	conn.incoming <- &Message{OutputTranscription: "marker"}
	<-s.Transcripts()

	assert.Equal(t, 0, s.Interrupt())
	require.NoError(t, s.Stop())
}

func TestSession_StopAggregatesErrorsAndIsIdempotent(t *testing.T) {
	conn := newFakeConn()
	conn.closeErr = errors.New("socket already gone")
	conn.recvErr = errors.New("server went away")
	s := NewSession(&fakeTransport{conn: conn}, Config{})
	require.NoError(t, s.Start(context.Background(), nil))

	close(conn.incoming)
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop after receive error")
	}

	err := s.Stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "socket already gone")
	assert.Contains(t, err.Error(), "server went away")
	assert.Equal(t, err, s.Stop())
}

func TestSession_ServerCloseStopsCleanly(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(&fakeTransport{conn: conn}, Config{})
	require.NoError(t, s.Start(context.Background(), nil))

	close(conn.incoming)
	<-s.Done()
	assert.NoError(t, s.Stop())
	assert.Equal(t, StateClosed, s.State())
}

func TestSession_ConnectFailure(t *testing.T) {
	s := NewSession(&fakeTransport{err: errors.New("403 forbidden")}, Config{})
	err := s.Start(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403 forbidden")
	assert.Equal(t, StateClosed, s.State())

	require.ErrorIs(t, s.Start(context.Background(), nil), ErrAlreadyStarted)
	require.Error(t, s.Stop())
}

func TestSession_StopBeforeStart(t *testing.T) {
	s := NewSession(&fakeTransport{conn: newFakeConn()}, Config{})
	require.NoError(t, s.Stop())
	assert.Equal(t, StateClosed, s.State())
	require.ErrorIs(t, s.Start(context.Background(), nil), ErrAlreadyStarted)
}
