package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/citegate/citegate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFullConfig(t *testing.T) {
	configContent := `
server:
  listen_addr: ":9090"
  request_timeout: 20s

auth:
  api_key: "secret-key"

upstream:
  project: "demo-project"
  endpoint: "https://discoveryengine.example.com/v1alpha"
  default_language: "en"
  max_attempts: 5
  attempt_timeout: 3s
  total_budget: 12s

enrichment:
  concurrency: 4
  lookup_timeout: 1s
  max_retries: 1

audit:
  bucket: "audit-bucket"
  prefix: "gateway-audit"
  queue_size: 32

telemetry:
  otlp_endpoint: "localhost:4317"
  insecure: true

logging:
  level: "debug"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, 20*time.Second, cfg.Server.RequestTimeout.Std())
	assert.Equal(t, "secret-key", cfg.Auth.APIKey)
	assert.Equal(t, "demo-project", cfg.Upstream.Project)
	assert.Equal(t, "en", cfg.Upstream.DefaultLanguage)
	assert.Equal(t, 5, cfg.Upstream.MaxAttempts)
	assert.Equal(t, 12*time.Second, cfg.Upstream.TotalBudget.Std())
	assert.Equal(t, time.Second, cfg.Enrichment.LookupTimeout.Std())
	assert.Equal(t, 4, cfg.Enrichment.Concurrency)
	assert.Equal(t, "audit-bucket", cfg.Audit.Bucket)
	assert.Equal(t, "gateway-audit", cfg.Audit.Prefix)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.OTLPEndpoint)
	assert.True(t, cfg.Telemetry.Insecure)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Defaults survive partial files
	assert.Equal(t, "global", cfg.Upstream.Location)
	assert.Equal(t, "default_collection", cfg.Upstream.Collection)
	assert.Equal(t, 2.0, cfg.Upstream.BackoffMultiplier)
}

func TestLoadMissingAPIKey(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("upstream:\n  project: p\naudit:\n  disabled: true\n"), 0o644))

	_, err := Load(configPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigInvalid)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CITEGATE_API_KEY", "env-key")
	t.Setenv("CITEGATE_UPSTREAM_PROJECT", "env-project")
	t.Setenv("CITEGATE_LISTEN_ADDR", ":7070")
	t.Setenv("CITEGATE_LOG_LEVEL", "warn")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("audit:\n  disabled: true\n"), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Auth.APIKey)
	assert.Equal(t, "env-project", cfg.Upstream.Project)
	assert.Equal(t, ":7070", cfg.Server.ListenAddr)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero attempts", func(c *Config) { c.Upstream.MaxAttempts = 0 }},
		{"zero concurrency", func(c *Config) { c.Enrichment.Concurrency = 0 }},
		{"zero lookup timeout", func(c *Config) { c.Enrichment.LookupTimeout = 0 }},
		{"audit without bucket", func(c *Config) { c.Audit.Bucket = "" }},
		{"negative multiplier", func(c *Config) { c.Upstream.BackoffMultiplier = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Auth.APIKey = "k"
			cfg.Upstream.Project = "p"
			cfg.Audit.Bucket = "b"
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), domain.ErrConfigInvalid)
		})
	}
}
