package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8090", cfg.Server.Addr)
	assert.True(t, cfg.Metadata.UseLLM)
	assert.Equal(t, 10, cfg.Session.Analyzer.BufferCapacity)
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
server:
  addr: ":9000"
metadata:
  use_llm: false
llm:
  model: qwen2.5-14b-instruct
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.False(t, cfg.Metadata.UseLLM)
	assert.Equal(t, "qwen2.5-14b-instruct", cfg.LLM.Model)

	// Untouched sections keep their defaults.
	assert.True(t, cfg.Metadata.FallbackToRules)
	assert.Equal(t, 5, cfg.Session.Analyzer.MinBufferSize)
	assert.Equal(t, 3, cfg.Pipeline.MaxRetries)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
`)
	t.Setenv("SHOTCOACH_ADDR", ":7070")
	t.Setenv("SHOTCOACH_LLM_API_KEY", "sk-test")
	t.Setenv("SHOTCOACH_USE_LLM", "0")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.False(t, cfg.Metadata.UseLLM)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "log_level: [broken")
	_, err := Load(path)
	assert.Error(t, err)
}
