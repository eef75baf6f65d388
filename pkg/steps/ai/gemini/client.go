package gemini

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/go-go-golems/jarvis/pkg/steps/ai/settings"
	"github.com/go-go-golems/jarvis/pkg/steps/ai/types"
)

// modelsAPI is the subset of genai.Models used by the engine and the
// capability provider.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateImages(ctx context.Context, model string, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
	GenerateVideos(ctx context.Context, model string, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
}

type operationsAPI interface {
	GetVideosOperation(ctx context.Context, operation *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error)
}

type filesAPI interface {
	Download(ctx context.Context, uri genai.DownloadURI, config *genai.DownloadFileConfig) ([]byte, error)
}

// Client bundles the genai services. It is built once at startup and shared
// by the engine, the capability provider and the live transport.
type Client struct {
	models     modelsAPI
	operations operationsAPI
	files      filesAPI
	live       *genai.Live
}

// NewClient builds a genai client from the gemini API key and base URL in ss.
func NewClient(ctx context.Context, ss *settings.StepSettings) (*Client, error) {
	if ss == nil {
		return nil, errors.New("no settings")
	}
	apiKey := ss.APIKey(types.ApiTypeGemini)
	if apiKey == "" {
		return nil, errors.Errorf("missing API key %s-api-key", types.ApiTypeGemini)
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL := ss.BaseURL(types.ApiTypeGemini); baseURL != "" {
		cc.HTTPOptions.BaseURL = baseURL
	}
	if ss.Client != nil {
		cc.HTTPClient = ss.Client.Client()
		if ss.Client.UserAgent != "" {
			cc.HTTPOptions.Headers = map[string][]string{"User-Agent": {ss.Client.UserAgent}}
		}
	}

	c, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gemini client")
	}
	log.Debug().Str("base_url", cc.HTTPOptions.BaseURL).Msg("gemini client created")
	return &Client{
		models:     c.Models,
		operations: c.Operations,
		files:      c.Files,
		live:       c.Live,
	}, nil
}
