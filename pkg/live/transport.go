package live

import "context"

// AudioChunk is raw audio with its MIME type, e.g. "audio/pcm;rate=16000".
type AudioChunk struct {
	MIMEType string
	Data     []byte
}

// InputMIMEType is the format of microphone chunks sent to the model.
const InputMIMEType = "audio/pcm;rate=16000"

// OutputSampleRate is the sample rate of the audio the model speaks.
const OutputSampleRate = 24000

// Message is one server message of a live connection.
type Message struct {
	Audio []AudioChunk
	// InputTranscription and OutputTranscription are incremental fragments
	InputTranscription  string
	OutputTranscription string
	TurnComplete        bool
	Interrupted         bool
}

// Config configures a live connection.
type Config struct {
	Model             string
	Voice             string
	SystemInstruction string
}

// Conn is an established bidirectional audio connection. Receive blocks
// until a message arrives or the connection is closed.
type Conn interface {
	SendAudio(ctx context.Context, chunk AudioChunk) error
	Receive(ctx context.Context) (*Message, error)
	Close() error
}

// Transport opens live connections.
type Transport interface {
	Connect(ctx context.Context, cfg Config) (Conn, error)
}
