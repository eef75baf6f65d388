package settings

import (
	"bytes"
	_ "embed"
	"io"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/jarvis/pkg/steps/ai/settings/gemini"
	"github.com/go-go-golems/jarvis/pkg/steps/ai/types"
)

//go:embed "defaults.yaml"
var defaultsYAML []byte

type APISettings struct {
	APIKeys  map[string]string `yaml:"api_keys,omitempty" mapstructure:"api_keys"`
	BaseUrls map[string]string `yaml:"base_urls,omitempty" mapstructure:"base_urls"`
}

type StepSettings struct {
	API    *APISettings     `yaml:"api,omitempty" mapstructure:"api"`
	Chat   *ChatSettings    `yaml:"chat,omitempty" mapstructure:"chat"`
	Client *ClientSettings  `yaml:"client,omitempty" mapstructure:"client"`
	Gemini *gemini.Settings `yaml:"gemini,omitempty" mapstructure:"gemini"`
}

// NewStepSettings returns the built-in defaults.
func NewStepSettings() (*StepSettings, error) {
	return NewStepSettingsFromYAML(bytes.NewReader(defaultsYAML))
}

// NewStepSettingsFromYAML decodes settings on top of empty sections.
func NewStepSettingsFromYAML(r io.Reader) (*StepSettings, error) {
	ss := &StepSettings{
		API:    &APISettings{APIKeys: map[string]string{}, BaseUrls: map[string]string{}},
		Chat:   &ChatSettings{},
		Client: &ClientSettings{},
		Gemini: &gemini.Settings{},
	}
	if err := yaml.NewDecoder(r).Decode(ss); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode step settings")
	}
	if ss.API.APIKeys == nil {
		ss.API.APIKeys = map[string]string{}
	}
	if ss.API.BaseUrls == nil {
		ss.API.BaseUrls = map[string]string{}
	}
	return ss, nil
}

// UpdateFromViper overlays the config file sections, then the flat
// "<provider>-api-key" and "<provider>-base-url" keys coming from flags and
// environment.
func (ss *StepSettings) UpdateFromViper(v *viper.Viper) error {
	sections := []struct {
		key    string
		target interface{}
	}{
		{"api", ss.API},
		{"chat", ss.Chat},
		{"client", ss.Client},
		{"gemini", ss.Gemini},
	}
	for _, s := range sections {
		if !v.IsSet(s.key) {
			continue
		}
		if err := v.UnmarshalKey(s.key, s.target); err != nil {
			return errors.Wrapf(err, "decode %s settings", s.key)
		}
	}

	for _, p := range []types.ApiType{types.ApiTypeGemini, types.ApiTypeOpenAI} {
		if key := v.GetString(string(p) + "-api-key"); key != "" {
			ss.API.APIKeys[string(p)+"-api-key"] = key
		}
		if url := v.GetString(string(p) + "-base-url"); url != "" {
			ss.API.BaseUrls[string(p)+"-base-url"] = url
		}
	}
	if apiType := v.GetString("ai-api-type"); apiType != "" {
		ss.Chat.ApiType = types.ApiType(apiType)
	}
	if engine := v.GetString("ai-engine"); engine != "" {
		ss.Chat.Engine = engine
	}
	return nil
}

func (ss *StepSettings) APIKey(p types.ApiType) string {
	if ss.API == nil {
		return ""
	}
	return ss.API.APIKeys[string(p)+"-api-key"]
}

func (ss *StepSettings) BaseURL(p types.ApiType) string {
	if ss.API == nil {
		return ""
	}
	return ss.API.BaseUrls[string(p)+"-base-url"]
}

// Validate checks that the providers in use have credentials. Capabilities
// always run on Gemini, so its key is required whatever the orchestrator is.
func (ss *StepSettings) Validate() error {
	if ss.Chat == nil || ss.Gemini == nil || ss.API == nil {
		return errors.New("incomplete step settings")
	}
	if ss.APIKey(types.ApiTypeGemini) == "" {
		return errors.New("missing API key gemini-api-key")
	}
	switch ss.Chat.ApiType {
	case types.ApiTypeGemini, "":
	case types.ApiTypeOpenAI:
		if ss.APIKey(types.ApiTypeOpenAI) == "" {
			return errors.New("missing API key openai-api-key")
		}
	default:
		return errors.Errorf("unsupported api type %s", ss.Chat.ApiType)
	}
	return nil
}

func (ss *StepSettings) Clone() *StepSettings {
	return clone.Clone(ss).(*StepSettings)
}

// GetMetadata returns the non-secret settings, for logging and events.
func (ss *StepSettings) GetMetadata() map[string]interface{} {
	metadata := make(map[string]interface{})
	if ss.Chat != nil {
		metadata["ai-api-type"] = string(ss.Chat.ApiType)
		metadata["ai-engine"] = ss.Chat.Engine
		if ss.Chat.MaxResponseTokens != nil {
			metadata["ai-max-response-tokens"] = *ss.Chat.MaxResponseTokens
		}
		if ss.Chat.Temperature != nil {
			metadata["ai-temperature"] = *ss.Chat.Temperature
		}
	}
	return metadata
}
