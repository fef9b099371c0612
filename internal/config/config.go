// Package config provides configuration loading for specforge.
//
// Configuration is loaded from a YAML file with environment variable
// overrides. See Load for precedence rules.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete specforge configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Services   ServicesConfig   `koanf:"services"`
	Extraction ExtractionConfig `koanf:"extraction"`
	Retry      RetryConfig      `koanf:"retry"`
	GitHub     GitHubConfig     `koanf:"github"`
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds zap logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// ServicesConfig holds endpoints for the external collaborators: the
// vector search service, the LLM invocation service, and the metadata
// service. All three are plain HTTP POST APIs.
type ServicesConfig struct {
	VectorSearchURL string   `koanf:"vector_search_url"`
	LLMURL          string   `koanf:"llm_url"`
	MetadataURL     string   `koanf:"metadata_url"`
	SearchTimeout   Duration `koanf:"search_timeout"`
	DetectTimeout   Duration `koanf:"detect_timeout"`
	MetadataTimeout Duration `koanf:"metadata_timeout"`
}

// ExtractionConfig holds pipeline tuning knobs.
type ExtractionConfig struct {
	// VectorResultsCount is the number of chunks requested per collection.
	VectorResultsCount int `koanf:"vector_results_count"`

	// MinChunkLength rejects chunks whose cleaned content is shorter.
	// Defends against embedding noise.
	MinChunkLength int `koanf:"min_chunk_length"`

	// CollectionSuffixes are appended to the codebase name to form the
	// collections searched. The empty suffix is the main codebase.
	CollectionSuffixes []string `koanf:"collection_suffixes"`

	// Parallel enables the bounded worker pool instead of sequential
	// chunk processing.
	Parallel    bool     `koanf:"parallel"`
	MaxWorkers  int      `koanf:"max_workers"`
	TaskTimeout Duration `koanf:"task_timeout"`

	// Validate enables the advisory second-pass LLM validation call.
	Validate bool `koanf:"validate"`
}

// RetryConfig holds the shared retry policy for external calls.
type RetryConfig struct {
	MaxAttempts      int      `koanf:"max_attempts"`
	InitialBackoff   Duration `koanf:"initial_backoff"`
	MaxBackoff       Duration `koanf:"max_backoff"`
	RateLimitBackoff Duration `koanf:"rate_limit_backoff"`
}

// GitHubConfig holds the commit sink configuration.
type GitHubConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Token    Secret `koanf:"token"`
	Owner    string `koanf:"owner"`
	Repo     string `koanf:"repo"`
	Branch   string `koanf:"branch"`
	BasePath string `koanf:"base_path"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9091,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Services: ServicesConfig{
			VectorSearchURL: "http://localhost:5000/vector-search",
			LLMURL:          "http://localhost:5000/LLM-API",
			MetadataURL:     "http://localhost:5000/fetch-metadata",
			SearchTimeout:   Duration(60 * time.Second),
			DetectTimeout:   Duration(300 * time.Second),
			MetadataTimeout: Duration(30 * time.Second),
		},
		Extraction: ExtractionConfig{
			VectorResultsCount: 10,
			MinChunkLength:     4,
			CollectionSuffixes: []string{"-external-files", ""},
			Parallel:           false,
			MaxWorkers:         4,
			TaskTimeout:        Duration(45 * time.Second),
			Validate:           true,
		},
		Retry: RetryConfig{
			MaxAttempts:      3,
			InitialBackoff:   Duration(2 * time.Second),
			MaxBackoff:       Duration(30 * time.Second),
			RateLimitBackoff: Duration(30 * time.Second),
		},
		GitHub: GitHubConfig{
			Branch:   "main",
			BasePath: "extractions",
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}
	if c.Extraction.VectorResultsCount < 1 {
		errs = append(errs, fmt.Errorf("extraction.vector_results_count must be positive"))
	}
	if c.Extraction.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("extraction.max_workers must be positive"))
	}
	if len(c.Extraction.CollectionSuffixes) == 0 {
		errs = append(errs, fmt.Errorf("extraction.collection_suffixes must not be empty"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be positive"))
	}
	if c.GitHub.Enabled {
		if !c.GitHub.Token.IsSet() {
			errs = append(errs, fmt.Errorf("github.token required when github.enabled"))
		}
		if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
			errs = append(errs, fmt.Errorf("github.owner and github.repo required when github.enabled"))
		}
	}

	return errors.Join(errs...)
}
