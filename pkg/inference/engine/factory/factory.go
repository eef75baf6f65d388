package factory

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-go-golems/jarvis/pkg/inference/engine"
	"github.com/go-go-golems/jarvis/pkg/steps/ai/gemini"
	"github.com/go-go-golems/jarvis/pkg/steps/ai/openai"
	"github.com/go-go-golems/jarvis/pkg/steps/ai/settings"
	"github.com/go-go-golems/jarvis/pkg/steps/ai/types"
)

// EngineFactory creates the decision engine of the agent loop from settings.
type EngineFactory interface {
	// CreateEngine creates an Engine for settings.Chat.ApiType.
	CreateEngine(ctx context.Context, settings *settings.StepSettings) (engine.Engine, error)

	// SupportedProviders returns the ApiType names this factory supports.
	SupportedProviders() []string

	// DefaultProvider is used when settings.Chat.ApiType is empty.
	DefaultProvider() string
}

// StandardEngineFactory builds Gemini and OpenAI-compatible engines.
type StandardEngineFactory struct {
	// GeminiClient is shared with the capability provider when set; otherwise
	// a client is built from the settings.
	GeminiClient *gemini.Client
}

func NewStandardEngineFactory(geminiClient *gemini.Client) *StandardEngineFactory {
	return &StandardEngineFactory{GeminiClient: geminiClient}
}

func (f *StandardEngineFactory) CreateEngine(ctx context.Context, settings *settings.StepSettings) (engine.Engine, error) {
	if settings == nil {
		return nil, errors.New("settings cannot be nil")
	}

	provider := f.DefaultProvider()
	if settings.Chat != nil && settings.Chat.ApiType != "" {
		provider = strings.ToLower(string(settings.Chat.ApiType))
	}

	if err := f.validateSettings(settings, provider); err != nil {
		return nil, errors.Wrapf(err, "invalid settings for provider %s", provider)
	}

	switch provider {
	case string(types.ApiTypeGemini):
		client := f.GeminiClient
		if client == nil {
			var err error
			client, err = gemini.NewClient(ctx, settings)
			if err != nil {
				return nil, err
			}
		}
		return gemini.NewEngine(client, settings.Chat)

	case string(types.ApiTypeOpenAI):
		client, err := openai.MakeClient(settings, types.ApiTypeOpenAI)
		if err != nil {
			return nil, err
		}
		return openai.NewEngine(client, settings.Chat)

	default:
		supported := strings.Join(f.SupportedProviders(), ", ")
		return nil, errors.Errorf("unsupported provider %s. Supported providers: %s", provider, supported)
	}
}

func (f *StandardEngineFactory) SupportedProviders() []string {
	return []string{
		string(types.ApiTypeGemini),
		string(types.ApiTypeOpenAI),
	}
}

func (f *StandardEngineFactory) DefaultProvider() string {
	return string(types.ApiTypeGemini)
}

func (f *StandardEngineFactory) validateSettings(settings *settings.StepSettings, provider string) error {
	if settings.Chat == nil {
		return errors.New("chat settings cannot be nil")
	}
	if settings.API == nil {
		return errors.New("API settings cannot be nil")
	}
	if settings.Chat.Engine == "" {
		return errors.New("no engine specified")
	}

	switch provider {
	case string(types.ApiTypeGemini):
		if f.GeminiClient != nil {
			return nil
		}
		return requireAPIKey(settings, provider)
	case string(types.ApiTypeOpenAI):
		return requireAPIKey(settings, provider)
	default:
		return errors.Errorf("unknown provider %s", provider)
	}
}

func requireAPIKey(settings *settings.StepSettings, provider string) error {
	apiKeyName := provider + "-api-key"
	if settings.API.APIKeys[apiKeyName] == "" {
		return errors.Errorf("missing API key %s", apiKeyName)
	}
	return nil
}
