// Package config loads the example server's YAML configuration file: the
// listen address, the settings folder, the blob backend, and which example
// Things to mount. Kept deliberately thin, matching spec.md's treatment of
// config-file parsing as an external collaborator rather than a named
// component.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level server configuration document.
type Config struct {
	Listen      string       `yaml:"listen"`
	BaseURL     string       `yaml:"base_url"`
	SettingsDir string       `yaml:"settings_dir"`
	LogLevel    string       `yaml:"log_level"`
	LogFormat   string       `yaml:"log_format"`
	Things      []string     `yaml:"things"`
	Blob        BlobConfig   `yaml:"blob"`
	TDCache     TDCacheConfig `yaml:"td_cache"`
}

// BlobConfig selects and configures a blob storage backend.
type BlobConfig struct {
	// Backend is "local" (default) or "s3".
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`

	S3Bucket   string `yaml:"s3_bucket"`
	S3Prefix   string `yaml:"s3_prefix"`
	S3Region   string `yaml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint"`
}

// TDCacheConfig selects and configures the Thing Description cache backend.
type TDCacheConfig struct {
	// Backend is "memory" (default), "redis", or "tiered".
	Backend  string `yaml:"backend"`
	TTLSecs  int    `yaml:"ttl_seconds"`
	Redis    RedisConfig `yaml:"redis"`
}

// RedisConfig configures the optional Redis L2 cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// defaults fills in the zero-value fields with sensible fallbacks so a
// minimal config file (or none at all) still produces a runnable server.
func (c *Config) defaults() {
	if c.Listen == "" {
		c.Listen = ":7123"
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost" + c.Listen
	}
	if c.SettingsDir == "" {
		c.SettingsDir = "./settings"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.Blob.Backend == "" {
		c.Blob.Backend = "local"
	}
	if c.Blob.Dir == "" {
		c.Blob.Dir = "./blobs"
	}
	if c.TDCache.Backend == "" {
		c.TDCache.Backend = "memory"
	}
	if c.TDCache.TTLSecs == 0 {
		c.TDCache.TTLSecs = 30
	}
}

// Load reads and parses the YAML config file at path, applying defaults for
// any field left unset.
func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.defaults()
	return cfg, nil
}

// Default returns a Config with every field at its default value, for
// running the example server with no config file at all.
func Default() Config {
	var cfg Config
	cfg.defaults()
	return cfg
}
