// Package config loads router configuration from YAML with environment
// overrides. Defaults are complete: a missing config file yields a fully
// working in-memory setup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all router configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Translation provider chain, tried in order
	Providers []ProviderConfig `yaml:"providers"`

	// Consensus poll chain; empty means reuse the translation chain
	ConsensusProviders []ProviderConfig `yaml:"consensus_providers"`

	// Engine settings
	Engines EngineConfig `yaml:"engines"`

	// Verdict cache
	Cache CacheConfig `yaml:"cache"`

	// Audit trail
	Audit AuditConfig `yaml:"audit"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ProviderConfig configures one LLM provider in a chain.
type ProviderConfig struct {
	Kind    string `yaml:"kind"` // openai, anthropic, gemini
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// EngineConfig configures the deterministic evaluators.
type EngineConfig struct {
	// Relative tolerance for floating-point equality
	Epsilon float64 `yaml:"epsilon"`
	// Minimum lexical-overlap score for a fact claim to pass
	FactThreshold float64 `yaml:"fact_threshold"`
	// Budget for one engine evaluation
	EvalTimeout string `yaml:"eval_timeout"`
}

// CacheConfig configures the verdict cache.
type CacheConfig struct {
	// Backend: "memory" or "sqlite"
	Backend string `yaml:"backend"`
	// Eviction policy for the memory backend: "lru" or "fifo"
	Policy string `yaml:"policy"`
	// Maximum live entries for the memory backend
	Capacity int `yaml:"capacity"`
	// Entry lifetime; empty or "0" disables expiry
	TTL string `yaml:"ttl"`
	// Database path for the sqlite backend
	DatabasePath string `yaml:"database_path"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	// Persist events to SQLite in addition to the log
	Persist bool `yaml:"persist"`
	// Database path when persisting
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "qwed",
		Version: "1.0.0",

		Providers: []ProviderConfig{
			{Kind: "openai", Model: "gpt-4o", Timeout: "60s"},
		},

		Engines: EngineConfig{
			Epsilon:       1e-9,
			FactThreshold: 0.6,
			EvalTimeout:   "5s",
		},

		Cache: CacheConfig{
			Backend:      "memory",
			Policy:       "lru",
			Capacity:     4096,
			TTL:          "24h",
			DatabasePath: "data/verdicts.db",
		},

		Audit: AuditConfig{
			Persist:      false,
			DatabasePath: "data/audit.db",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file returns
// defaults; environment variables override either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides. API keys are
// matched to providers of the corresponding kind so keys never need to
// live in the config file.
func (c *Config) applyEnvOverrides() {
	keys := map[string]string{
		"openai":    os.Getenv("OPENAI_API_KEY"),
		"anthropic": os.Getenv("ANTHROPIC_API_KEY"),
		"gemini":    os.Getenv("GEMINI_API_KEY"),
	}
	for i := range c.Providers {
		if key := keys[c.Providers[i].Kind]; key != "" {
			c.Providers[i].APIKey = key
		}
	}
	for i := range c.ConsensusProviders {
		if key := keys[c.ConsensusProviders[i].Kind]; key != "" {
			c.ConsensusProviders[i].APIKey = key
		}
	}

	if path := os.Getenv("QWED_CACHE_DB"); path != "" {
		c.Cache.DatabasePath = path
		c.Cache.Backend = "sqlite"
	}
	if path := os.Getenv("QWED_AUDIT_DB"); path != "" {
		c.Audit.DatabasePath = path
		c.Audit.Persist = true
	}
	if level := os.Getenv("QWED_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// GetEvalTimeout returns the engine evaluation budget as a duration.
func (c *Config) GetEvalTimeout() time.Duration {
	d, err := time.ParseDuration(c.Engines.EvalTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// GetCacheTTL returns the cache entry lifetime as a duration. Zero means
// no expiry.
func (c *Config) GetCacheTTL() time.Duration {
	if c.Cache.TTL == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil || d < 0 {
		return 24 * time.Hour
	}
	return d
}

// GetProviderTimeout returns one provider's request timeout.
func (p ProviderConfig) GetProviderTimeout() time.Duration {
	d, err := time.ParseDuration(p.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}
