// Package config loads run configuration from an optional YAML file
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-pkgz/lgr"
	"gopkg.in/yaml.v3"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// Config holds the job configuration
type Config struct {
	Catalog string       `yaml:"catalog" json:"catalog" jsonschema:"default=static/veille-tech.opml,description=OPML catalog of feed sources grouped by category"`
	Output  string       `yaml:"output" json:"output" jsonschema:"default=static/rss-feed-cache.json,description=Snapshot destination"`
	Locale  string       `yaml:"locale" json:"locale" jsonschema:"default=fr,description=Locale for category ordering and the untitled label"`
	Fetch   FetchConfig  `yaml:"fetch" json:"fetch" jsonschema:"description=Feed fetching"`
	Digest  DigestConfig `yaml:"digest" json:"digest" jsonschema:"description=Filtering and aggregation"`
}

// FetchConfig holds feed fetching settings
type FetchConfig struct {
	TimeoutMs   int    `yaml:"timeout_ms" json:"timeout_ms" jsonschema:"default=10000,minimum=100,description=Per-fetch deadline in milliseconds"`
	Concurrency int    `yaml:"concurrency" json:"concurrency" jsonschema:"default=5,minimum=1,maximum=100,description=Maximum simultaneous fetches"`
	UserAgent   string `yaml:"user_agent" json:"user_agent" jsonschema:"default=feedsnap/1.0,description=User agent for feed requests"`
}

// DigestConfig holds filtering and aggregation settings
type DigestConfig struct {
	WindowHours int  `yaml:"window_hours" json:"window_hours" jsonschema:"default=24,minimum=1,description=Items older than this many hours are dropped"`
	Dedupe      bool `yaml:"dedupe" json:"dedupe" jsonschema:"default=false,description=Keep only the newest item per link within a category"`
}

// Default returns configuration with all defaults set, used when no file is given
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// unknown keys are most likely typos, worth a warning but not a failure
	unknown, err := VerifyAgainstEmbeddedSchema(expanded)
	if err != nil {
		lgr.Printf("[WARN] schema validation failed: %v", err)
	}
	for _, k := range unknown {
		lgr.Printf("[WARN] unknown config key %q in %s", k, path)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Catalog == "" {
		c.Catalog = "static/veille-tech.opml"
	}
	if c.Output == "" {
		c.Output = "static/rss-feed-cache.json"
	}
	if c.Locale == "" {
		c.Locale = "fr"
	}
	if c.Fetch.TimeoutMs == 0 {
		c.Fetch.TimeoutMs = 10000
	}
	if c.Fetch.Concurrency == 0 {
		c.Fetch.Concurrency = 5
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "feedsnap/1.0"
	}
	if c.Digest.WindowHours == 0 {
		c.Digest.WindowHours = 24
	}
}

// Validate checks configuration for correctness
func (c *Config) Validate() error {
	if c.Catalog == "" {
		return fmt.Errorf("catalog is required")
	}
	if c.Output == "" {
		return fmt.Errorf("output is required")
	}
	if c.Fetch.TimeoutMs < 100 {
		return fmt.Errorf("fetch.timeout_ms must be at least 100")
	}
	if c.Fetch.Concurrency < 1 || c.Fetch.Concurrency > 100 {
		return fmt.Errorf("fetch.concurrency must be between 1 and 100")
	}
	if c.Digest.WindowHours < 1 {
		return fmt.Errorf("digest.window_hours must be at least 1")
	}
	return nil
}

// Window returns the recency window
func (c *Config) Window() time.Duration {
	return time.Duration(c.Digest.WindowHours) * time.Hour
}

// Timeout returns the per-fetch deadline
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutMs) * time.Millisecond
}
