package gemini

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/go-go-golems/jarvis/pkg/live"
	gemini_settings "github.com/go-go-golems/jarvis/pkg/steps/ai/settings/gemini"
)

// LiveTransport opens native-audio sessions over the genai live API, with
// input and output transcription enabled.
type LiveTransport struct {
	client   *Client
	settings *gemini_settings.Settings
}

var _ live.Transport = (*LiveTransport)(nil)

func NewLiveTransport(client *Client, s *gemini_settings.Settings) (*LiveTransport, error) {
	if client == nil || client.live == nil {
		return nil, errors.New("live transport needs a gemini client")
	}
	if s == nil {
		return nil, errors.New("no gemini settings")
	}
	return &LiveTransport{client: client, settings: s}, nil
}

// Config returns the live configuration from the gemini settings.
func (t *LiveTransport) Config() live.Config {
	return live.Config{Model: t.settings.LiveModel, Voice: t.settings.Voice}
}

func liveConnectConfig(cfg live.Config) *genai.LiveConnectConfig {
	cc := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if cfg.Voice != "" {
		cc.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.SystemInstruction != "" {
		cc.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}
	return cc
}

func (t *LiveTransport) Connect(ctx context.Context, cfg live.Config) (live.Conn, error) {
	if cfg.Model == "" {
		cfg.Model = t.settings.LiveModel
	}
	if cfg.Voice == "" {
		cfg.Voice = t.settings.Voice
	}
	session, err := t.client.live.Connect(ctx, cfg.Model, liveConnectConfig(cfg))
	if err != nil {
		return nil, errors.Wrapf(err, "%s live connect", cfg.Model)
	}
	return &liveConn{session: session}, nil
}

type liveConn struct {
	session *genai.Session
}

func (c *liveConn) SendAudio(_ context.Context, chunk live.AudioChunk) error {
	return c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{MIMEType: chunk.MIMEType, Data: chunk.Data},
	})
}

// Receive blocks on the websocket; Close unblocks it.
func (c *liveConn) Receive(_ context.Context) (*live.Message, error) {
	msg, err := c.session.Receive()
	if err != nil {
		return nil, err
	}
	return liveMessage(msg), nil
}

func (c *liveConn) Close() error {
	return c.session.Close()
}

func liveMessage(msg *genai.LiveServerMessage) *live.Message {
	ret := &live.Message{}
	if msg == nil || msg.ServerContent == nil {
		return ret
	}
	sc := msg.ServerContent
	ret.TurnComplete = sc.TurnComplete
	ret.Interrupted = sc.Interrupted
	if sc.InputTranscription != nil {
		ret.InputTranscription = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		ret.OutputTranscription = sc.OutputTranscription.Text
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
				continue
			}
			ret.Audio = append(ret.Audio, live.AudioChunk{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data})
		}
	}
	return ret
}
