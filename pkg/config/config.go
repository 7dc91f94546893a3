// Package config provides configuration structures and loading logic for the gateway.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/citegate/citegate/pkg/domain"
)

// Config holds the global configuration for the gateway.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Storage    StorageConfig    `yaml:"storage"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Audit      AuditConfig      `yaml:"audit"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	ReadTimeout    Duration `yaml:"read_timeout"`
	WriteTimeout   Duration `yaml:"write_timeout"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// AuthConfig holds the inbound API key settings.
type AuthConfig struct {
	// APIKey is the single shared secret clients present in X-API-Key.
	// Never logged.
	APIKey string `yaml:"api_key"`
}

// UpstreamConfig holds configuration for the answer engine client.
type UpstreamConfig struct {
	Endpoint          string   `yaml:"endpoint"`
	Project           string   `yaml:"project"`
	Location          string   `yaml:"location"`
	Collection        string   `yaml:"collection"`
	DefaultLanguage   string   `yaml:"default_language"`
	Token             string   `yaml:"token"`
	AttemptTimeout    Duration `yaml:"attempt_timeout"`
	MaxAttempts       int      `yaml:"max_attempts"`
	InitialBackoff    Duration `yaml:"initial_backoff"`
	MaxBackoff        Duration `yaml:"max_backoff"`
	BackoffMultiplier float64  `yaml:"backoff_multiplier"`
	TotalBudget       Duration `yaml:"total_budget"`
}

// StorageConfig holds configuration for the object storage service endpoints.
type StorageConfig struct {
	Endpoint       string `yaml:"endpoint"`
	UploadEndpoint string `yaml:"upload_endpoint"`
}

// EnrichmentConfig holds configuration for the citation enrichment fan-out.
type EnrichmentConfig struct {
	// Concurrency caps in-flight metadata lookups across all requests.
	Concurrency   int      `yaml:"concurrency"`
	LookupTimeout Duration `yaml:"lookup_timeout"`
	MaxRetries    int      `yaml:"max_retries"`
}

// AuditConfig holds configuration for the asynchronous audit sink.
type AuditConfig struct {
	Bucket       string   `yaml:"bucket"`
	Prefix       string   `yaml:"prefix"`
	QueueSize    int      `yaml:"queue_size"`
	MaxRetries   int      `yaml:"max_retries"`
	FlushTimeout Duration `yaml:"flush_timeout"`
	Disabled     bool     `yaml:"disabled"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration defaults applied before file and
// environment overrides.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:     ":8080",
			ReadTimeout:    Duration(10 * time.Second),
			WriteTimeout:   Duration(60 * time.Second),
			RequestTimeout: Duration(30 * time.Second),
		},
		Upstream: UpstreamConfig{
			Endpoint:          "https://discoveryengine.googleapis.com/v1alpha",
			Location:          "global",
			Collection:        "default_collection",
			DefaultLanguage:   "es",
			AttemptTimeout:    Duration(10 * time.Second),
			MaxAttempts:       3,
			InitialBackoff:    Duration(100 * time.Millisecond),
			MaxBackoff:        Duration(5 * time.Second),
			BackoffMultiplier: 2.0,
			TotalBudget:       Duration(25 * time.Second),
		},
		Storage: StorageConfig{
			Endpoint:       "https://storage.googleapis.com/storage/v1",
			UploadEndpoint: "https://storage.googleapis.com/upload/storage/v1",
		},
		Enrichment: EnrichmentConfig{
			Concurrency:   16,
			LookupTimeout: Duration(2 * time.Second),
			MaxRetries:    2,
		},
		Audit: AuditConfig{
			Prefix:       "audit",
			QueueSize:    256,
			MaxRetries:   2,
			FlushTimeout: Duration(5 * time.Second),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("CITEGATE_LISTEN_ADDR"); val != "" {
		cfg.Server.ListenAddr = val
	}
	if val := os.Getenv("CITEGATE_API_KEY"); val != "" {
		cfg.Auth.APIKey = val
	}
	if val := os.Getenv("CITEGATE_UPSTREAM_PROJECT"); val != "" {
		cfg.Upstream.Project = val
	}
	if val := os.Getenv("CITEGATE_UPSTREAM_TOKEN"); val != "" {
		cfg.Upstream.Token = val
	}
	if val := os.Getenv("CITEGATE_AUDIT_BUCKET"); val != "" {
		cfg.Audit.Bucket = val
	}
	if val := os.Getenv("CITEGATE_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("CITEGATE_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Auth.APIKey == "" {
		return fmt.Errorf("%w: auth.api_key is required", domain.ErrConfigInvalid)
	}
	if c.Upstream.Project == "" {
		return fmt.Errorf("%w: upstream.project is required", domain.ErrConfigInvalid)
	}
	if c.Upstream.MaxAttempts < 1 {
		return fmt.Errorf("%w: upstream.max_attempts must be at least 1", domain.ErrConfigInvalid)
	}
	if c.Upstream.BackoffMultiplier <= 0 {
		return fmt.Errorf("%w: upstream.backoff_multiplier must be positive", domain.ErrConfigInvalid)
	}
	if c.Enrichment.Concurrency < 1 {
		return fmt.Errorf("%w: enrichment.concurrency must be at least 1", domain.ErrConfigInvalid)
	}
	if c.Enrichment.LookupTimeout <= 0 {
		return fmt.Errorf("%w: enrichment.lookup_timeout must be positive", domain.ErrConfigInvalid)
	}
	if !c.Audit.Disabled && c.Audit.Bucket == "" {
		return fmt.Errorf("%w: audit.bucket is required unless audit is disabled", domain.ErrConfigInvalid)
	}
	if c.Audit.QueueSize < 1 {
		return fmt.Errorf("%w: audit.queue_size must be at least 1", domain.ErrConfigInvalid)
	}
	return nil
}
