package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 4, cfg.Extraction.MaxWorkers)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, []string{"-external-files", ""}, cfg.Extraction.CollectionSuffixes)
	assert.Equal(t, 45*time.Second, cfg.Extraction.TaskTimeout.Duration())
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name:    "no collection suffixes",
			mutate:  func(c *Config) { c.Extraction.CollectionSuffixes = nil },
			wantErr: "collection_suffixes",
		},
		{
			name: "github enabled without token",
			mutate: func(c *Config) {
				c.GitHub.Enabled = true
				c.GitHub.Owner = "acme"
				c.GitHub.Repo = "specs"
			},
			wantErr: "github.token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
services:
  llm_url: http://llm.internal:8082/LLM-API
extraction:
  max_workers: 8
  parallel: true
retry:
  initial_backoff: 5s
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://llm.internal:8082/LLM-API", cfg.Services.LLMURL)
	assert.Equal(t, 8, cfg.Extraction.MaxWorkers)
	assert.True(t, cfg.Extraction.Parallel)
	assert.Equal(t, 5*time.Second, cfg.Retry.InitialBackoff.Duration())
	// Untouched values keep defaults.
	assert.Equal(t, 10, cfg.Extraction.VectorResultsCount)
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("ghp_supersecret")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "ghp_supersecret", s.Value())

	data, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "supersecret")
}
