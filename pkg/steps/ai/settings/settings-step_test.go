package settings

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/jarvis/pkg/steps/ai/types"
)

func TestDefaults(t *testing.T) {
	ss, err := NewStepSettings()
	require.NoError(t, err)

	assert.Equal(t, types.ApiTypeGemini, ss.Chat.ApiType)
	assert.Equal(t, "gemini-2.5-flash", ss.Chat.Engine)
	assert.Equal(t, "gemini-2.5-pro", ss.Chat.EngineFor(types.ModelPro))
	assert.Equal(t, "gemini-2.5-flash", ss.Chat.EngineFor(types.ModelFlash))
	assert.Equal(t, 10, ss.Chat.MaxIterations)
	assert.Equal(t, 10*time.Second, ss.Gemini.VideoPollInterval)
	assert.Equal(t, 10*time.Minute, ss.Gemini.VideoPollTimeout)
	assert.Equal(t, int32(32768), ss.Gemini.ComplexThinkingBudget)
	assert.Equal(t, "Kore", ss.Gemini.Voice)
	assert.False(t, ss.Gemini.HasLocation())
	assert.NotNil(t, ss.API.APIKeys)
}

func TestUpdateFromViperOverlaysConfigAndKeys(t *testing.T) {
	ss, err := NewStepSettings()
	require.NoError(t, err)

	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
gemini:
  latitude: 48.85
  longitude: 2.35
  video_poll_timeout: 2m
chat:
  max_iterations: 4
`)))
	v.Set("gemini-api-key", "g-key")
	v.Set("openai-api-key", "o-key")
	v.Set("ai-api-type", "openai")

	require.NoError(t, ss.UpdateFromViper(v))
	assert.True(t, ss.Gemini.HasLocation())
	assert.Equal(t, 48.85, *ss.Gemini.Latitude)
	assert.Equal(t, 2*time.Minute, ss.Gemini.VideoPollTimeout)
	assert.Equal(t, 10*time.Second, ss.Gemini.VideoPollInterval)
	assert.Equal(t, 4, ss.Chat.MaxIterations)
	assert.Equal(t, "gemini-2.5-flash", ss.Chat.Engine)
	assert.Equal(t, "g-key", ss.APIKey(types.ApiTypeGemini))
	assert.Equal(t, types.ApiTypeOpenAI, ss.Chat.ApiType)
	assert.NoError(t, ss.Validate())
}

func TestValidateRequiresGeminiKey(t *testing.T) {
	ss, err := NewStepSettings()
	require.NoError(t, err)
	assert.Error(t, ss.Validate())

	ss.API.APIKeys["gemini-api-key"] = "k"
	assert.NoError(t, ss.Validate())

	ss.Chat.ApiType = types.ApiTypeOpenAI
	assert.Error(t, ss.Validate())
}

func TestCloneIsIndependent(t *testing.T) {
	ss, err := NewStepSettings()
	require.NoError(t, err)
	cp := ss.Clone()
	cp.Chat.Engine = "other"
	cp.API.APIKeys["x"] = "y"
	assert.Equal(t, "gemini-2.5-flash", ss.Chat.Engine)
	assert.NotContains(t, ss.API.APIKeys, "x")
}
