// Package config loads the sturgeond service configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full sturgeond configuration.
type Config struct {
	Listen          string         `yaml:"listen"`
	DBPath          string         `yaml:"db_path"`
	BlobsDir        string         `yaml:"blobs_dir"`
	MaxFileMB       int            `yaml:"max_file_mb"`
	RateLimitPerMin int            `yaml:"rate_limit_per_min"`
	Worker          WorkerConfig   `yaml:"worker"`
	Analyzer        AnalyzerConfig `yaml:"analyzer"`
}

// WorkerConfig tunes the background processing loop.
type WorkerConfig struct {
	PollIntervalMS  int `yaml:"poll_interval_ms"`
	BatchSize       int `yaml:"batch_size"`
	ErrorBackoffMS  int `yaml:"error_backoff_ms"`
	InfraRetries    int `yaml:"infra_retries"`
	StaleAfterMin   int `yaml:"stale_after_min"`
	ShutdownGraceMS int `yaml:"shutdown_grace_ms"`
}

// AnalyzerConfig configures the structured-analysis providers.
type AnalyzerConfig struct {
	Providers     []ProviderConfig `yaml:"providers"`
	TimeoutMS     int              `yaml:"timeout_ms"`
	MaxInputChars int              `yaml:"max_input_chars"`
	RatePerSec    float64          `yaml:"rate_per_sec"`
	RateBurst     int              `yaml:"rate_burst"`
}

// ProviderConfig identifies one OpenAI-compatible chat endpoint.
// Providers are tried in declaration order until one returns a
// schema-conforming result.
type ProviderConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          ":8090",
		DBPath:          "sturgeond.db",
		BlobsDir:        "blobs",
		MaxFileMB:       25,
		RateLimitPerMin: 120,
		Worker: WorkerConfig{
			PollIntervalMS:  2000,
			BatchSize:       10,
			ErrorBackoffMS:  15000,
			InfraRetries:    3,
			StaleAfterMin:   30,
			ShutdownGraceMS: 30000,
		},
		Analyzer: AnalyzerConfig{
			TimeoutMS:     60000,
			MaxInputChars: 12000,
			RatePerSec:    1,
			RateBurst:     2,
		},
	}
}

// Load reads and parses a YAML config file. Returns DefaultConfig merged with the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.BlobsDir == "" {
		return fmt.Errorf("blobs_dir is required")
	}
	if c.MaxFileMB <= 0 {
		return fmt.Errorf("max_file_mb must be > 0")
	}
	if c.Worker.BatchSize <= 0 {
		return fmt.Errorf("worker.batch_size must be > 0")
	}
	for i, p := range c.Analyzer.Providers {
		if p.BaseURL == "" {
			return fmt.Errorf("analyzer.providers[%d]: base_url is required", i)
		}
		if p.Model == "" {
			return fmt.Errorf("analyzer.providers[%d]: model is required", i)
		}
	}
	return nil
}

// MaxFileBytes returns the intake size ceiling in bytes.
func (c *Config) MaxFileBytes() int64 { return int64(c.MaxFileMB) * 1024 * 1024 }

// PollInterval returns the worker poll interval as a duration.
func (c *WorkerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// ErrorBackoff returns the loop-level backoff applied after a failed poll cycle.
func (c *WorkerConfig) ErrorBackoff() time.Duration {
	return time.Duration(c.ErrorBackoffMS) * time.Millisecond
}

// StaleAfter returns the processing-age threshold for the staleness query.
func (c *WorkerConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMin) * time.Minute
}

// Timeout returns the per-call analyzer timeout.
func (c *AnalyzerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}
