package generate_test

import (
	"testing"
	"time"

	"github.com/kiranshivaraju/floorcast/internal/config"
	"github.com/kiranshivaraju/floorcast/internal/generate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGenerator_Gemini(t *testing.T) {
	cfg := config.GenerationConfig{
		Provider: "gemini",
		Timeout:  time.Minute,
		Gemini:   config.GeminiConfig{APIKey: "key", BaseURL: "https://example.test", Model: "gemini-test"},
	}
	g, err := generate.NewGenerator(cfg)
	require.NoError(t, err)
	assert.Equal(t, "gemini", g.Name())
}

func TestNewGenerator_Passthrough(t *testing.T) {
	g, err := generate.NewGenerator(config.GenerationConfig{Provider: "passthrough"})
	require.NoError(t, err)
	assert.Equal(t, "passthrough", g.Name())
}

func TestNewGenerator_Unknown(t *testing.T) {
	_, err := generate.NewGenerator(config.GenerationConfig{Provider: "dall-e"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown generator provider")
	assert.Contains(t, err.Error(), "dall-e")
}

func TestNewGenerator_Empty(t *testing.T) {
	_, err := generate.NewGenerator(config.GenerationConfig{})
	require.Error(t, err)
}

func TestNewGenerator_GeminiWithoutKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	_, err := generate.NewGenerator(config.GenerationConfig{
		Provider: "gemini",
		Gemini:   config.GeminiConfig{BaseURL: "https://example.test", Model: "gemini-test"},
	})
	require.Error(t, err)
}
