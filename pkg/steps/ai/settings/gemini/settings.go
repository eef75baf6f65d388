package gemini

import (
	"time"

	"github.com/huandu/go-clone"
)

// Settings holds the models and knobs of the Gemini capability back-ends.
type Settings struct {
	TextModel             string `yaml:"text_model" mapstructure:"text_model"`
	ComplexModel          string `yaml:"complex_model" mapstructure:"complex_model"`
	ComplexThinkingBudget int32  `yaml:"complex_thinking_budget" mapstructure:"complex_thinking_budget"`
	GroundedModel         string `yaml:"grounded_model" mapstructure:"grounded_model"`
	ImageModel            string `yaml:"image_model" mapstructure:"image_model"`
	AnalyzeModel          string `yaml:"analyze_model" mapstructure:"analyze_model"`
	EditModel             string `yaml:"edit_model" mapstructure:"edit_model"`
	VideoModel            string `yaml:"video_model" mapstructure:"video_model"`
	VideoResolution       string `yaml:"video_resolution" mapstructure:"video_resolution"`
	SpeechModel           string `yaml:"speech_model" mapstructure:"speech_model"`
	Voice                 string `yaml:"voice" mapstructure:"voice"`
	LiveModel             string `yaml:"live_model" mapstructure:"live_model"`

	VideoPollInterval time.Duration `yaml:"video_poll_interval" mapstructure:"video_poll_interval"`
	VideoPollTimeout  time.Duration `yaml:"video_poll_timeout" mapstructure:"video_poll_timeout"`

	// Latitude and Longitude anchor location-grounded answers
	Latitude  *float64 `yaml:"latitude,omitempty" mapstructure:"latitude"`
	Longitude *float64 `yaml:"longitude,omitempty" mapstructure:"longitude"`
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

// HasLocation reports whether both coordinates are configured.
func (s *Settings) HasLocation() bool {
	return s != nil && s.Latitude != nil && s.Longitude != nil
}
