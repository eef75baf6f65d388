package gemini

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	speechSampleRate    = 24000
	speechChannels      = 1
	speechBitsPerSample = 16
)

// speechToWAV wraps the raw 16-bit little-endian PCM returned by the speech
// model in a RIFF header. Audio that already has a container is returned as
// is.
func speechToWAV(mimeType string, pcm []byte) ([]byte, error) {
	if strings.HasPrefix(mimeType, "audio/wav") || strings.HasPrefix(mimeType, "audio/x-wav") {
		return pcm, nil
	}
	return encodeWAV(pcm, sampleRateFromMIME(mimeType, speechSampleRate), speechChannels, speechBitsPerSample)
}

// sampleRateFromMIME reads the rate parameter of e.g.
// "audio/L16;codec=pcm;rate=24000".
func sampleRateFromMIME(mimeType string, fallback int) int {
	for _, param := range strings.Split(mimeType, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || k != "rate" {
			continue
		}
		if rate, err := strconv.Atoi(v); err == nil && rate > 0 {
			return rate
		}
	}
	return fallback
}

func encodeWAV(pcm []byte, sampleRate, channels, bitsPerSample int) ([]byte, error) {
	if len(pcm)%(channels*bitsPerSample/8) != 0 {
		return nil, errors.Errorf("pcm length %d is not a whole number of frames", len(pcm))
	}
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	if err := binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm))); err != nil {
		return nil, errors.Wrap(err, "write riff size")
	}
	buf.WriteString("WAVEfmt ")
	fmtChunk := []any{
		uint32(16),
		uint16(1), // PCM
		uint16(channels),
		uint32(sampleRate),
		uint32(byteRate),
		uint16(blockAlign),
		uint16(bitsPerSample),
	}
	for _, f := range fmtChunk {
		if err := binary.Write(&buf, binary.LittleEndian, f); err != nil {
			return nil, errors.Wrap(err, "write fmt chunk")
		}
	}
	buf.WriteString("data")
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(pcm))); err != nil {
		return nil, errors.Wrap(err, "write data size")
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}
