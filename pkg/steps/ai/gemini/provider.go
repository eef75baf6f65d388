package gemini

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/go-go-golems/jarvis/pkg/capabilities"
	gemini_settings "github.com/go-go-golems/jarvis/pkg/steps/ai/settings/gemini"
)

// Provider runs the capabilities on Gemini models.
type Provider struct {
	client   *Client
	settings *gemini_settings.Settings
	poller   *videoPoller
}

var _ capabilities.Provider = (*Provider)(nil)

func NewProvider(client *Client, s *gemini_settings.Settings) (*Provider, error) {
	if client == nil {
		return nil, errors.New("gemini provider needs a client")
	}
	if s == nil {
		return nil, errors.New("no gemini settings")
	}
	return &Provider{
		client:   client,
		settings: s,
		poller:   newVideoPoller(client.operations, s.VideoPollInterval, s.VideoPollTimeout),
	}, nil
}

func (p *Provider) generate(ctx context.Context, model string, parts []*genai.Part, cfg *genai.GenerateContentConfig) (candidateOutput, error) {
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := p.client.models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return candidateOutput{}, errors.Wrapf(err, "%s generate content", model)
	}
	return firstCandidate(resp), nil
}

func (p *Provider) text(ctx context.Context, model string, prompt string, cfg *genai.GenerateContentConfig) (*capabilities.TextOutput, error) {
	out, err := p.generate(ctx, model, []*genai.Part{genai.NewPartFromText(prompt)}, cfg)
	if err != nil {
		return nil, err
	}
	return &capabilities.TextOutput{Text: out.text, Sources: out.citations}, nil
}

func (p *Provider) GenerateText(ctx context.Context, prompt string) (*capabilities.TextOutput, error) {
	return p.text(ctx, p.settings.TextModel, prompt, nil)
}

func (p *Provider) GenerateComplexText(ctx context.Context, prompt string) (*capabilities.TextOutput, error) {
	cfg := &genai.GenerateContentConfig{}
	if p.settings.ComplexThinkingBudget > 0 {
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(p.settings.ComplexThinkingBudget)}
	}
	return p.text(ctx, p.settings.ComplexModel, prompt, cfg)
}

func (p *Provider) SearchGroundedText(ctx context.Context, prompt string) (*capabilities.TextOutput, error) {
	cfg := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}
	return p.text(ctx, p.settings.GroundedModel, prompt, cfg)
}

// MapsGroundedText needs configured coordinates, as the answer is anchored
// on the user's position.
func (p *Provider) MapsGroundedText(ctx context.Context, prompt string) (*capabilities.TextOutput, error) {
	if !p.settings.HasLocation() {
		return nil, errors.New("location is not available, set gemini.latitude and gemini.longitude")
	}
	cfg := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleMaps: &genai.GoogleMaps{}}},
		ToolConfig: &genai.ToolConfig{
			RetrievalConfig: &genai.RetrievalConfig{
				LatLng: &genai.LatLng{Latitude: p.settings.Latitude, Longitude: p.settings.Longitude},
			},
		},
	}
	return p.text(ctx, p.settings.GroundedModel, prompt, cfg)
}

func (p *Provider) GenerateImage(ctx context.Context, prompt string, aspectRatio string) (*capabilities.MediaOutput, error) {
	resp, err := p.client.models.GenerateImages(ctx, p.settings.ImageModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: "image/jpeg",
		AspectRatio:    aspectRatio,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "%s generate images", p.settings.ImageModel)
	}
	if resp == nil || len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, errors.New("no image was returned")
	}
	gi := resp.GeneratedImages[0]
	if gi.RAIFilteredReason != "" {
		return nil, errors.Errorf("image was filtered: %s", gi.RAIFilteredReason)
	}
	mimeType := gi.Image.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return &capabilities.MediaOutput{MIMEType: mimeType, Data: gi.Image.ImageBytes}, nil
}

func attachmentPart(a *capabilities.Attachment) *genai.Part {
	if len(a.Data) > 0 {
		return genai.NewPartFromBytes(a.Data, a.MIMEType)
	}
	return genai.NewPartFromURI(a.URI, a.MIMEType)
}

func (p *Provider) AnalyzeImage(ctx context.Context, prompt string, image *capabilities.Attachment) (*capabilities.TextOutput, error) {
	if image == nil {
		return nil, &capabilities.MissingAttachmentError{Capability: capabilities.AnalyzeImage.String()}
	}
	out, err := p.generate(ctx, p.settings.AnalyzeModel,
		[]*genai.Part{genai.NewPartFromText(prompt), attachmentPart(image)}, nil)
	if err != nil {
		return nil, err
	}
	return &capabilities.TextOutput{Text: out.text}, nil
}

func (p *Provider) EditImage(ctx context.Context, prompt string, image *capabilities.Attachment) (*capabilities.MediaOutput, error) {
	if image == nil {
		return nil, &capabilities.MissingAttachmentError{Capability: capabilities.EditImage.String()}
	}
	out, err := p.generate(ctx, p.settings.EditModel,
		[]*genai.Part{attachmentPart(image), genai.NewPartFromText(prompt)},
		&genai.GenerateContentConfig{ResponseModalities: []string{string(genai.ModalityImage)}})
	if err != nil {
		return nil, err
	}
	for _, blob := range out.media {
		if len(blob.Data) > 0 {
			return &capabilities.MediaOutput{MIMEType: blob.MIMEType, Data: blob.Data}, nil
		}
	}
	return nil, errors.New("no edited image was returned")
}

func (p *Provider) GenerateVideo(ctx context.Context, prompt string, image *capabilities.Attachment, aspectRatio string) (*capabilities.MediaOutput, error) {
	var img *genai.Image
	if image != nil {
		img = &genai.Image{ImageBytes: image.Data, MIMEType: image.MIMEType}
	}
	op, err := p.client.models.GenerateVideos(ctx, p.settings.VideoModel, prompt, img, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     p.settings.VideoResolution,
		AspectRatio:    aspectRatio,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "%s generate videos", p.settings.VideoModel)
	}
	log.Debug().Str("operation", op.Name).Msg("video generation started")

	op, err = p.poller.wait(ctx, op)
	if err != nil {
		return nil, err
	}
	video, err := firstVideo(op)
	if err != nil {
		return nil, err
	}

	data := video.Video.VideoBytes
	if len(data) == 0 {
		data, err = p.client.files.Download(ctx, genai.NewDownloadURIFromGeneratedVideo(video), nil)
		if err != nil {
			return nil, errors.Wrap(err, "download generated video")
		}
	}
	mimeType := video.Video.MIMEType
	if mimeType == "" {
		mimeType = "video/mp4"
	}
	return &capabilities.MediaOutput{MIMEType: mimeType, Data: data, URI: video.Video.URI}, nil
}

func (p *Provider) TextToSpeech(ctx context.Context, text string) (*capabilities.MediaOutput, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: p.settings.Voice},
			},
		},
	}
	out, err := p.generate(ctx, p.settings.SpeechModel, []*genai.Part{genai.NewPartFromText(text)}, cfg)
	if err != nil {
		return nil, err
	}
	for _, blob := range out.media {
		if len(blob.Data) == 0 {
			continue
		}
		wav, err := speechToWAV(blob.MIMEType, blob.Data)
		if err != nil {
			return nil, err
		}
		return &capabilities.MediaOutput{MIMEType: "audio/wav", Data: wav}, nil
	}
	return nil, errors.New("no audio data was returned")
}
