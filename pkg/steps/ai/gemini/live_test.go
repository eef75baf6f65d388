package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/go-go-golems/jarvis/pkg/live"
)

func TestLiveConnectConfig(t *testing.T) {
	cc := liveConnectConfig(live.Config{Voice: "Zephyr", SystemInstruction: "Be brief."})
	assert.Equal(t, []genai.Modality{genai.ModalityAudio}, cc.ResponseModalities)
	require.NotNil(t, cc.InputAudioTranscription)
	require.NotNil(t, cc.OutputAudioTranscription)
	assert.Equal(t, "Zephyr", cc.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName)
	assert.Equal(t, "Be brief.", cc.SystemInstruction.Parts[0].Text)

	cc = liveConnectConfig(live.Config{})
	assert.Nil(t, cc.SpeechConfig)
	assert.Nil(t, cc.SystemInstruction)
}

func TestLiveMessage(t *testing.T) {
	msg := liveMessage(&genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{
		ModelTurn: &genai.Content{Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: []byte{1, 2}}},
			{Text: "ignored"},
		}},
		InputTranscription:  &genai.Transcription{Text: "hel"},
		OutputTranscription: &genai.Transcription{Text: "hi"},
		TurnComplete:        true,
		Interrupted:         true,
	}})
	require.Len(t, msg.Audio, 1)
	assert.Equal(t, "audio/pcm;rate=24000", msg.Audio[0].MIMEType)
	assert.Equal(t, "hel", msg.InputTranscription)
	assert.Equal(t, "hi", msg.OutputTranscription)
	assert.True(t, msg.TurnComplete)
	assert.True(t, msg.Interrupted)

	empty := liveMessage(&genai.LiveServerMessage{})
	assert.Empty(t, empty.Audio)
}

func TestNewLiveTransportValidation(t *testing.T) {
	_, err := NewLiveTransport(nil, nil)
	require.Error(t, err)
	_, err = NewLiveTransport(&Client{}, nil)
	require.Error(t, err)
}
