package gemini

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWAV_Header(t *testing.T) {
	pcm := []byte{0, 1, 2, 3}
	wav, err := encodeWAV(pcm, 24000, 1, 16)
	require.NoError(t, err)
	require.Len(t, wav, 48)

	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, uint32(40), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, "WAVEfmt ", string(wav[8:16]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[20:22]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[22:24]))
	assert.Equal(t, uint32(24000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(48000), binary.LittleEndian.Uint32(wav[28:32]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(wav[32:34]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(wav[34:36]))
	assert.Equal(t, "data", string(wav[36:40]))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(wav[40:44]))
	assert.Equal(t, pcm, wav[44:])
}

func TestEncodeWAV_RejectsPartialFrames(t *testing.T) {
	_, err := encodeWAV([]byte{1, 2, 3}, 24000, 1, 16)
	assert.Error(t, err)
}

func TestSampleRateFromMIME(t *testing.T) {
	assert.Equal(t, 16000, sampleRateFromMIME("audio/L16;codec=pcm;rate=16000", 24000))
	assert.Equal(t, 24000, sampleRateFromMIME("audio/L16", 24000))
	assert.Equal(t, 24000, sampleRateFromMIME("audio/L16;rate=abc", 24000))
}

func TestSpeechToWAV_PassesThroughWAV(t *testing.T) {
	data := []byte("RIFF....")
	got, err := speechToWAV("audio/wav", data)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
