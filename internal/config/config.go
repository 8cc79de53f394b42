// Package config loads server configuration from a YAML file with sane
// defaults for running against the current directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Dialect names for the store query layer.
const (
	DialectTyped = "typed"
	DialectRaw   = "raw"
)

// Embedding provider names.
const (
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
)

type Embedding struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

type Watch struct {
	Enabled    bool          `yaml:"enabled"`
	DebounceMS int           `yaml:"debounce_ms"`
	Debounce   time.Duration `yaml:"-"`
}

type Config struct {
	Workspace string    `yaml:"workspace"`
	DBPath    string    `yaml:"db_path"`
	Dialect   string    `yaml:"dialect"`
	MaxDepth  int       `yaml:"max_depth"`
	Embedding Embedding `yaml:"embedding"`
	Watch     Watch     `yaml:"watch"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Workspace: ".",
		DBPath:    filepath.Join(".", ".codegraph.db"),
		Dialect:   DialectTyped,
		MaxDepth:  20,
		Embedding: Embedding{Provider: ProviderHash},
		Watch:     Watch{Enabled: false, DebounceMS: 300},
	}
}

// Load reads path into a Config on top of the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	return cfg, cfg.finish()
}

func (c *Config) finish() error {
	switch c.Dialect {
	case DialectTyped, DialectRaw:
	default:
		return fmt.Errorf("unknown dialect %q: must be %q or %q", c.Dialect, DialectTyped, DialectRaw)
	}
	switch c.Embedding.Provider {
	case ProviderHash, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown embedding provider %q: must be %q or %q", c.Embedding.Provider, ProviderHash, ProviderOpenAI)
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 20
	}
	if c.Watch.DebounceMS <= 0 {
		c.Watch.DebounceMS = 300
	}
	c.Watch.Debounce = time.Duration(c.Watch.DebounceMS) * time.Millisecond

	if c.Embedding.Provider == ProviderOpenAI && c.Embedding.APIKey == "" {
		c.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("embedding provider %q needs an api_key or OPENAI_API_KEY", ProviderOpenAI)
		}
	}
	return nil
}
