package settings

import (
	"github.com/huandu/go-clone"

	"github.com/go-go-golems/jarvis/pkg/steps/ai/types"
)

// ChatSettings configures the orchestrating model that decides which
// capability to call.
type ChatSettings struct {
	ApiType types.ApiType `yaml:"api_type,omitempty" mapstructure:"api_type"`
	// Engine is the default orchestrator model ("flash" submissions)
	Engine string `yaml:"engine,omitempty" mapstructure:"engine"`
	// ProEngine is used for submissions that ask for the pro model
	ProEngine         string   `yaml:"pro_engine,omitempty" mapstructure:"pro_engine"`
	MaxResponseTokens *int     `yaml:"max_response_tokens,omitempty" mapstructure:"max_response_tokens"`
	Temperature       *float64 `yaml:"temperature,omitempty" mapstructure:"temperature"`
	TopP              *float64 `yaml:"top_p,omitempty" mapstructure:"top_p"`
	// SystemPrompt is a text/template with sprig functions
	SystemPrompt  string `yaml:"system_prompt,omitempty" mapstructure:"system_prompt"`
	MaxIterations int    `yaml:"max_iterations,omitempty" mapstructure:"max_iterations"`
}

func (s *ChatSettings) Clone() *ChatSettings {
	return clone.Clone(s).(*ChatSettings)
}

// EngineFor maps a submission's model choice to a model name.
func (s *ChatSettings) EngineFor(choice types.ModelChoice) string {
	if choice == types.ModelPro && s.ProEngine != "" {
		return s.ProEngine
	}
	return s.Engine
}
