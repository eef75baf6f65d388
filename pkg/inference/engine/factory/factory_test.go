package factory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/jarvis/pkg/steps/ai/gemini"
	"github.com/go-go-golems/jarvis/pkg/steps/ai/openai"
	"github.com/go-go-golems/jarvis/pkg/steps/ai/settings"
	"github.com/go-go-golems/jarvis/pkg/steps/ai/types"
)

func newSettings(t *testing.T, apiType types.ApiType, keys map[string]string) *settings.StepSettings {
	t.Helper()
	ss, err := settings.NewStepSettings()
	require.NoError(t, err)
	ss.Chat.ApiType = apiType
	for k, v := range keys {
		ss.API.APIKeys[k] = v
	}
	return ss
}

func TestStandardEngineFactory_SupportedProviders(t *testing.T) {
	f := NewStandardEngineFactory(nil)
	assert.ElementsMatch(t, []string{"gemini", "openai"}, f.SupportedProviders())
	assert.Equal(t, string(types.ApiTypeGemini), f.DefaultProvider())
}

func TestStandardEngineFactory_CreateEngine_NilSettings(t *testing.T) {
	eng, err := NewStandardEngineFactory(nil).CreateEngine(context.Background(), nil)
	assert.Nil(t, eng)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settings cannot be nil")
}

func TestStandardEngineFactory_CreateEngine_Gemini(t *testing.T) {
	ss := newSettings(t, types.ApiTypeGemini, map[string]string{"gemini-api-key": "test-key"})

	eng, err := NewStandardEngineFactory(nil).CreateEngine(context.Background(), ss)
	require.NoError(t, err)
	assert.IsType(t, &gemini.Engine{}, eng)
}

func TestStandardEngineFactory_CreateEngine_DefaultsToGemini(t *testing.T) {
	ss := newSettings(t, "", map[string]string{"gemini-api-key": "test-key"})

	eng, err := NewStandardEngineFactory(nil).CreateEngine(context.Background(), ss)
	require.NoError(t, err)
	assert.IsType(t, &gemini.Engine{}, eng)
}

func TestStandardEngineFactory_CreateEngine_OpenAI(t *testing.T) {
	ss := newSettings(t, types.ApiTypeOpenAI, map[string]string{"openai-api-key": "test-key"})
	ss.Chat.Engine = "gpt-4o-mini"

	eng, err := NewStandardEngineFactory(nil).CreateEngine(context.Background(), ss)
	require.NoError(t, err)
	assert.IsType(t, &openai.Engine{}, eng)
}

func TestStandardEngineFactory_CreateEngine_MissingKey(t *testing.T) {
	ss := newSettings(t, types.ApiTypeOpenAI, nil)

	_, err := NewStandardEngineFactory(nil).CreateEngine(context.Background(), ss)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing API key openai-api-key")
}

func TestStandardEngineFactory_CreateEngine_UnknownProvider(t *testing.T) {
	ss := newSettings(t, "claude", nil)

	_, err := NewStandardEngineFactory(nil).CreateEngine(context.Background(), ss)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider claude")
}

func TestStandardEngineFactory_CreateEngine_MissingEngine(t *testing.T) {
	ss := newSettings(t, types.ApiTypeGemini, map[string]string{"gemini-api-key": "k"})
	ss.Chat.Engine = ""

	_, err := NewStandardEngineFactory(nil).CreateEngine(context.Background(), ss)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no engine specified")
}
