// Package config loads the service configuration from an optional YAML
// file with environment variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
)

type ModelConfig struct {
	// Name is the model identifier sent to the completion endpoint.
	Name        string   `yaml:"name"`
	BaseURL     string   `yaml:"base_url"`
	APIKey      string   `yaml:"api_key"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty"`
}

type ScanSanConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type Config struct {
	Listen  string `yaml:"listen"`
	DataDir string `yaml:"data_dir"`

	// MaxToolRounds bounds the tool loop per turn.
	MaxToolRounds   int `yaml:"max_tool_rounds"`
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`

	// ValuationURL points at an external prediction service. Empty means
	// the built-in model.
	ValuationURL string `yaml:"valuation_url"`

	Model   ModelConfig   `yaml:"model"`
	ScanSan ScanSanConfig `yaml:"scansan"`
}

func Default() *Config {
	return &Config{
		Listen:          ":8080",
		DataDir:         "data",
		MaxToolRounds:   8,
		CacheTTLSeconds: 3600,
		Model: ModelConfig{
			Name:    "openai/gpt-5-nano",
			BaseURL: "https://openrouter.ai/api/v1",
		},
		ScanSan: ScanSanConfig{
			BaseURL: "https://api.scansan.com/v1",
		},
	}
}

// Load reads path over the defaults. An empty path skips the file and
// returns defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.Model.APIKey = v
	}
	if v := os.Getenv("SCANSAN_API_KEY"); v != "" {
		c.ScanSan.APIKey = v
	}
	if v := os.Getenv("RENTAGENT_LISTEN"); v != "" {
		c.Listen = v
	}
}

func (c *Config) CacheTTL() time.Duration {
	if c.CacheTTLSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c *Config) ConversationDBPath() string {
	return filepath.Join(c.DataDir, "conversations.db")
}

func (c *Config) CacheDBPath() string {
	return filepath.Join(c.DataDir, "toolcache.db")
}
