package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ClientResty, cfg.LLM.Client)
	assert.Equal(t, "gpt-3.5-turbo", cfg.LLM.Model)
	assert.Equal(t, "https://api.openai.com", cfg.LLM.BaseURL)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 5, cfg.Examples.MaxIterations)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.False(t, cfg.Cache.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
llm:
  model: gpt-4o-mini
  api_key_env: CUSTOM_KEY
  temperature: 0.2
examples:
  max_iterations: 8
cache:
  enabled: true
  ttl: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("CUSTOM_KEY", "from-custom-env")
	t.Setenv("GOLEAPCHAIN_LLM_BASE_URL", "http://localhost:11434")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "from-custom-env", cfg.LLM.APIKey)
	assert.Equal(t, 0.2, cfg.LLM.Temperature)
	assert.Equal(t, "http://localhost:11434", cfg.LLM.BaseURL)
	assert.Equal(t, 8, cfg.Examples.MaxIterations)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Minute, cfg.CacheTTL())
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown client", func(c *Config) { c.LLM.Client = "grpc" }},
		{"empty model", func(c *Config) { c.LLM.Model = "" }},
		{"bad base url", func(c *Config) { c.LLM.BaseURL = "not a url" }},
		{"temperature too high", func(c *Config) { c.LLM.Temperature = 3 }},
		{"negative rate", func(c *Config) { c.LLM.RequestsPerMinute = -1 }},
		{"zero iterations", func(c *Config) { c.Examples.MaxIterations = 0 }},
		{"bad timeout", func(c *Config) { c.LLM.Timeout = "soon" }},
		{"bad database", func(c *Config) {
			c.History.Enabled = true
			c.Database.Type = "mongo"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurations_Fallback(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout())
	assert.Equal(t, 10*time.Minute, cfg.ExamplesTimeout())
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL())
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Empty(t, cfg.LLM.APIKey)
	assert.Equal(t, "OPENAI_API_KEY", cfg.LLM.APIKeyEnv)
	assert.Equal(t, "127.0.0.1:9090", cfg.Monitoring.Prometheus.Addr)
	assert.NoError(t, cfg.Validate())
}
