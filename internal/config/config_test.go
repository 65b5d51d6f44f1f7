package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "https://chat.qwen.ai", cfg.QwenBaseURL)
	assert.Equal(t, "qwen3-max", cfg.DefaultModel)
	assert.NotEmpty(t, cfg.AvailableModels)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("QWEN_BASE_URL", "https://vendor.example.com/")
	t.Setenv("AVAILABLE_MODELS", "model-a, model-b ,")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Port)
	// Trailing slash trimmed
	assert.Equal(t, "https://vendor.example.com", cfg.QwenBaseURL)
	assert.Equal(t, []string{"model-a", "model-b"}, cfg.AvailableModels)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidPortValueFallsBack(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
}

func TestLoad_OutOfRangePortRejected(t *testing.T) {
	t.Setenv("PORT", "70000")

	_, err := Load()
	assert.Error(t, err)
}

func TestConfig_Addr(t *testing.T) {
	cfg := &Config{Host: "127.0.0.1", Port: 8080}
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
}
