package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
	assert.Equal(t, 3, cfg.Breakdown.FormatFixAttempts)
	assert.True(t, cfg.Breakdown.EnableResearch)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  model: gemini-2.5-pro
  temperature: 0.5
breakdown:
  concurrency_limit: 4
  enable_research: false
tracker:
  enabled: true
  base_url: https://example.atlassian.net
  email: dev@example.com
  api_token: secret
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Model)
	assert.InDelta(t, 0.5, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, 4, cfg.Breakdown.ConcurrencyLimit)
	assert.False(t, cfg.Breakdown.EnableResearch)
	assert.True(t, cfg.Breakdown.EnableTestPlans) // untouched default
	require.NoError(t, func() error { cfg.LLM.APIKey = "k"; return cfg.Validate() }())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("TICKETSMITH_CONCURRENCY", "7")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.LLM.APIKey)
	assert.Equal(t, 7, cfg.Breakdown.ConcurrencyLimit)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate())

	cfg.LLM.APIKey = "k"
	assert.NoError(t, cfg.Validate())

	cfg.Tracker.Enabled = true
	assert.Error(t, cfg.Validate())
}
