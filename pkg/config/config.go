// Package config loads service configuration from YAML with
// environment fallbacks for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// HTTP server
	Port int `yaml:"port"`

	// LLM provider
	Provider   string  `yaml:"provider"` // gemini, openai
	Model      string  `yaml:"model"`
	TitleModel string  `yaml:"title_model"`
	GoogleKey  string  `yaml:"google_key"`
	OpenAIKey  string  `yaml:"openai_key"`
	LLMTimeout string  `yaml:"llm_timeout"` // e.g. "60s"
	RateLimit  float64 `yaml:"rate_limit"`  // model calls per second, 0 = unlimited
	RateBurst  int     `yaml:"rate_burst"`

	// Session cache
	Redis RedisConfig `yaml:"redis"`

	// Durable store
	PostgresDSN string `yaml:"postgres_dsn"`
}

// RedisConfig holds session cache settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
	TTL      string `yaml:"ttl"` // e.g. "168h"
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration built purely from defaults and
// environment variables, for running without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Provider == "" {
		c.Provider = "gemini"
	}
	if c.LLMTimeout == "" {
		c.LLMTimeout = "60s"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	}
	if c.Redis.Password == "" {
		c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	}

	// Load API keys and DSN from environment if not in config
	if c.GoogleKey == "" {
		c.GoogleKey = os.Getenv("GOOGLE_API_KEY")
	}
	if c.OpenAIKey == "" {
		c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.PostgresDSN == "" {
		c.PostgresDSN = os.Getenv("DATABASE_URL")
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Provider {
	case "gemini":
		if c.GoogleKey == "" {
			return fmt.Errorf("google_key is required for the gemini provider")
		}
	case "openai":
		if c.OpenAIKey == "" {
			return fmt.Errorf("openai_key is required for the openai provider")
		}
	default:
		return fmt.Errorf("unknown provider: %s", c.Provider)
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}

	if _, err := c.ParseLLMTimeout(); err != nil {
		return err
	}
	if _, err := c.ParseSessionTTL(); err != nil {
		return err
	}

	return nil
}

// ParseLLMTimeout returns the configured model call timeout.
func (c *Config) ParseLLMTimeout() (time.Duration, error) {
	if c.LLMTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.LLMTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid llm_timeout: %w", err)
	}
	return d, nil
}

// ParseSessionTTL returns the configured session expiry window, or 0
// for the package default.
func (c *Config) ParseSessionTTL() (time.Duration, error) {
	if c.Redis.TTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Redis.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid redis.ttl: %w", err)
	}
	return d, nil
}

// ProviderConfig returns the factory configuration map for the
// configured provider.
func (c *Config) ProviderConfig() map[string]any {
	switch c.Provider {
	case "gemini":
		return map[string]any{"api_key": c.GoogleKey}
	case "openai":
		return map[string]any{"api_key": c.OpenAIKey}
	default:
		return map[string]any{}
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
