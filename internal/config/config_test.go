package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://api.openai.com", cfg.LLM.BaseURL)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 3600, cfg.LLM.CacheTTLSec)
	assert.Equal(t, 30, cfg.LLM.TimeoutSec)
	assert.Equal(t, 3, cfg.LLM.MaxRetries)
	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, "memories", cfg.Storage.MemoriesCollection)
	assert.Equal(t, "entity_names", cfg.Storage.EntitiesCollection)
	assert.Equal(t, 256, cfg.Embedding.MaxLength)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, 0.85, cfg.Resolution.VectorThreshold)
	assert.Equal(t, 0.75, cfg.Resolution.FuzzyThreshold)
	assert.True(t, cfg.Resolution.UseLLM)
	assert.Equal(t, 300, cfg.Resolution.CacheTTLSec)
	assert.Equal(t, 10, cfg.Query.TimelineDisplayLimit)
	assert.True(t, cfg.Network.TLSVerify)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MEETGRAPH_LLM_MODEL", "gpt-4o")
	t.Setenv("MEETGRAPH_LLM_MODEL_FALLBACKS", "gpt-4o-mini, gpt-3.5-turbo")
	t.Setenv("MEETGRAPH_ENTITY_RESOLUTION_VECTOR_THRESHOLD", "0.9")
	t.Setenv("MEETGRAPH_ENTITY_RESOLUTION_USE_LLM", "false")
	t.Setenv("MEETGRAPH_TLS_VERIFY", "no")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, []string{"gpt-4o-mini", "gpt-3.5-turbo"}, cfg.LLM.ModelFallbacks)
	assert.Equal(t, 0.9, cfg.Resolution.VectorThreshold)
	assert.False(t, cfg.Resolution.UseLLM)
	assert.False(t, cfg.Network.TLSVerify)
}

func TestThresholdFloors(t *testing.T) {
	t.Setenv("MEETGRAPH_ENTITY_RESOLUTION_VECTOR_THRESHOLD", "0.1")
	t.Setenv("MEETGRAPH_ENTITY_RESOLUTION_FUZZY_THRESHOLD", "0.2")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, VectorThresholdFloor, cfg.Resolution.VectorThreshold)
	assert.Equal(t, FuzzyThresholdFloor, cfg.Resolution.FuzzyThreshold)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meetgraph.yaml")
	content := []byte(`
llm:
  model: gpt-4o
  model_fallbacks:
    - gpt-4o-mini
storage:
  engine: postgres
  postgres_dsn: postgres://localhost/meetgraph
resolution:
  fuzzy_threshold: 0.8
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "postgres", cfg.Storage.Engine)
	assert.Equal(t, 0.8, cfg.Resolution.FuzzyThreshold)
	// Untouched sections keep defaults.
	assert.Equal(t, 384, cfg.Embedding.Dimension)
}

func TestModelChain(t *testing.T) {
	llm := LLMConfig{
		Model:          "gpt-4o",
		ModelFallbacks: []string{"gpt-4o-mini", "gpt-4o", "", " gpt-3.5-turbo "},
	}

	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini", "gpt-3.5-turbo"}, llm.ModelChain())
}

func TestLoadConfigFileMissing(t *testing.T) {
	_, err := LoadConfigFile("/nonexistent/meetgraph.yaml")
	assert.Error(t, err)
}
