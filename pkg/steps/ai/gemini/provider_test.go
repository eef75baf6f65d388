package gemini

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/go-go-golems/jarvis/pkg/capabilities"
	gemini_settings "github.com/go-go-golems/jarvis/pkg/steps/ai/settings/gemini"
	"github.com/go-go-golems/jarvis/pkg/turns"
)

func testSettings() *gemini_settings.Settings {
	return &gemini_settings.Settings{
		TextModel:             "text-model",
		ComplexModel:          "complex-model",
		ComplexThinkingBudget: 32768,
		GroundedModel:         "grounded-model",
		ImageModel:            "image-model",
		AnalyzeModel:          "analyze-model",
		EditModel:             "edit-model",
		VideoModel:            "video-model",
		VideoResolution:       "720p",
		SpeechModel:           "speech-model",
		Voice:                 "Kore",
		VideoPollInterval:     time.Millisecond,
		VideoPollTimeout:      time.Second,
	}
}

func newTestProvider(t *testing.T, c *Client, s *gemini_settings.Settings) *Provider {
	t.Helper()
	p, err := NewProvider(c, s)
	require.NoError(t, err)
	return p
}

func TestProvider_TextModels(t *testing.T) {
	models := &fakeModels{generateContent: func(model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return textResponse(model + ": " + contents[0].Parts[0].Text), nil
	}}
	p := newTestProvider(t, &Client{models: models}, testSettings())

	out, err := p.GenerateText(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "text-model: hi", out.Text)

	out, err = p.GenerateComplexText(context.Background(), "prove it")
	require.NoError(t, err)
	assert.Equal(t, "complex-model: prove it", out.Text)
	cfg := models.configs[1]
	require.NotNil(t, cfg.ThinkingConfig)
	assert.Equal(t, int32(32768), *cfg.ThinkingConfig.ThinkingBudget)
}

func TestProvider_SearchGroundedTextReturnsSources(t *testing.T) {
	models := &fakeModels{generateContent: func(string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return textResponse("Sunny",
			&genai.GroundingChunk{Web: &genai.GroundingChunkWeb{URI: "https://a", Title: "A"}},
			&genai.GroundingChunk{Web: &genai.GroundingChunkWeb{URI: "https://b", Title: "B"}},
		), nil
	}}
	p := newTestProvider(t, &Client{models: models}, testSettings())

	out, err := p.SearchGroundedText(context.Background(), "weather")
	require.NoError(t, err)
	assert.Equal(t, "Sunny", out.Text)
	require.Len(t, out.Sources, 2)
	assert.Equal(t, "https://a", out.Sources[0].URI)
	require.Len(t, models.configs[0].Tools, 1)
	assert.NotNil(t, models.configs[0].Tools[0].GoogleSearch)
	assert.Equal(t, []string{"grounded-model"}, models.models)
}

func TestProvider_MapsNeedsLocation(t *testing.T) {
	models := &fakeModels{generateContent: func(string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return textResponse("Café nearby", &genai.GroundingChunk{Maps: &genai.GroundingChunkMaps{URI: "https://maps/x", Title: "Café"}}), nil
	}}
	s := testSettings()
	p := newTestProvider(t, &Client{models: models}, s)

	_, err := p.MapsGroundedText(context.Background(), "coffee")
	require.Error(t, err)
	assert.Empty(t, models.models)

	lat, lng := 48.85, 2.35
	s.Latitude, s.Longitude = &lat, &lng
	out, err := p.MapsGroundedText(context.Background(), "coffee")
	require.NoError(t, err)
	assert.Equal(t, []turns.Citation{{Kind: turns.CitationMaps, URI: "https://maps/x", Title: "Café"}}, out.Sources)
	latLng := models.configs[0].ToolConfig.RetrievalConfig.LatLng
	assert.Equal(t, 48.85, *latLng.Latitude)
	assert.NotNil(t, models.configs[0].Tools[0].GoogleMaps)
}

func TestProvider_GenerateImage(t *testing.T) {
	var seen *genai.GenerateImagesConfig
	models := &fakeModels{generateImages: func(model, prompt string, cfg *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
		seen = cfg
		return &genai.GenerateImagesResponse{GeneratedImages: []*genai.GeneratedImage{{
			Image: &genai.Image{ImageBytes: []byte("jpeg"), MIMEType: "image/jpeg"},
		}}}, nil
	}}
	p := newTestProvider(t, &Client{models: models}, testSettings())

	out, err := p.GenerateImage(context.Background(), "a cat", "16:9")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", out.MIMEType)
	assert.Equal(t, []byte("jpeg"), out.Data)
	assert.Equal(t, "16:9", seen.AspectRatio)
	assert.Equal(t, int32(1), seen.NumberOfImages)
}

func TestProvider_EditImage(t *testing.T) {
	models := &fakeModels{generateContent: func(_ string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return blobResponse("image/png", []byte("painted")), nil
	}}
	p := newTestProvider(t, &Client{models: models}, testSettings())

	img := &capabilities.Attachment{MIMEType: "image/png", Data: []byte("photo")}
	out, err := p.EditImage(context.Background(), "make it a painting", img)
	require.NoError(t, err)
	assert.Equal(t, []byte("painted"), out.Data)
	assert.Equal(t, []string{"IMAGE"}, models.configs[0].ResponseModalities)

	_, err = p.EditImage(context.Background(), "x", nil)
	assert.Equal(t, capabilities.ErrorKindMissingAttachment, capabilities.KindOf(err))
}

func TestProvider_EditImageWithoutImageInResponse(t *testing.T) {
	models := &fakeModels{generateContent: func(string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return textResponse("I cannot do that"), nil
	}}
	p := newTestProvider(t, &Client{models: models}, testSettings())
	_, err := p.EditImage(context.Background(), "x", &capabilities.Attachment{MIMEType: "image/png", Data: []byte{1}})
	assert.Error(t, err)
}

func TestProvider_TextToSpeechWrapsWAV(t *testing.T) {
	pcm := make([]byte, 480)
	models := &fakeModels{generateContent: func(string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return blobResponse("audio/L16;codec=pcm;rate=24000", pcm), nil
	}}
	p := newTestProvider(t, &Client{models: models}, testSettings())

	out, err := p.TextToSpeech(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", out.MIMEType)
	assert.Len(t, out.Data, 44+len(pcm))
	assert.Equal(t, "RIFF", string(out.Data[:4]))
	assert.Equal(t, "Kore", models.configs[0].SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName)
}

func TestProvider_GenerateVideoPollsAndDownloads(t *testing.T) {
	polls := 0
	var seenImage *genai.Image
	models := &fakeModels{generateVideos: func(model, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
		seenImage = image
		return &genai.GenerateVideosOperation{Name: "operations/v1"}, nil
	}}
	ops := &fakeOperations{get: func(op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
		polls++
		if polls < 3 {
			return &genai.GenerateVideosOperation{Name: op.Name}, nil
		}
		return &genai.GenerateVideosOperation{Name: op.Name, Done: true, Response: &genai.GenerateVideosResponse{
			GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{URI: "https://files/v.mp4"}}},
		}}, nil
	}}
	files := &fakeFiles{data: []byte("mp4")}
	p := newTestProvider(t, &Client{models: models, operations: ops, files: files}, testSettings())

	img := &capabilities.Attachment{MIMEType: "image/png", Data: []byte("frame")}
	out, err := p.GenerateVideo(context.Background(), "animate", img, "9:16")
	require.NoError(t, err)
	assert.Equal(t, 3, polls)
	assert.Equal(t, 1, files.downloads)
	assert.Equal(t, "video/mp4", out.MIMEType)
	assert.Equal(t, []byte("mp4"), out.Data)
	assert.Equal(t, "https://files/v.mp4", out.URI)
	require.NotNil(t, seenImage)
	assert.Equal(t, []byte("frame"), seenImage.ImageBytes)
}
