// Package config provides configuration loading and management for Scout.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/scout/model"
	"github.com/c360studio/scout/retry"
)

// Config represents the complete Scout configuration
type Config struct {
	Models   model.RegistryConfig `yaml:"models"`
	NATS     NATSConfig           `yaml:"nats"`
	Research ResearchConfig       `yaml:"research"`
	Retry    RetryConfig          `yaml:"retry"`
	Web      WebConfig            `yaml:"web"`
	Market   MarketConfig         `yaml:"market"`
	Log      LogConfig            `yaml:"log"`
	Metrics  MetricsConfig        `yaml:"metrics"`
}

// NATSConfig configures the NATS connection used for run archives,
// LLM call records, and progress publishing
type NATSConfig struct {
	// URL is the NATS server URL (empty = NATS features disabled)
	URL string `yaml:"url"`
}

// ResearchConfig configures the research pipeline
type ResearchConfig struct {
	// DefaultEntities is used when request classification cannot
	// extract any entities
	DefaultEntities []string `yaml:"default_entities"`

	// Identifiers maps lowercased entity names to ticker symbols
	Identifiers map[string]string `yaml:"identifiers"`

	// MaxAgentTurns bounds the tool-calling loop per sub-task
	MaxAgentTurns int `yaml:"max_agent_turns"`

	// Temperature for research-stage LLM calls (0.0-1.0)
	Temperature float64 `yaml:"temperature"`
}

// RetryConfig configures the retry policy for external calls
type RetryConfig struct {
	// MaxAttempts is the total attempt budget per call (first try included)
	MaxAttempts int `yaml:"max_attempts"`
	// BackoffBase is the first retry delay
	BackoffBase time.Duration `yaml:"backoff_base"`
	// BackoffMultiplier grows the delay between attempts
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	// MaxBackoff caps the delay
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// WebConfig configures web search and page fetching
type WebConfig struct {
	// SearchURL is the search API endpoint (Tavily-compatible)
	SearchURL string `yaml:"search_url"`
	// UserAgent identifies scout to fetched sites
	UserAgent string `yaml:"user_agent"`
	// FetchTimeout bounds a single page fetch
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	// MaxPageBytes caps the fetched page size
	MaxPageBytes int64 `yaml:"max_page_bytes"`
}

// MarketConfig configures market data lookups
type MarketConfig struct {
	// QuoteURL is the quote API base URL
	QuoteURL string `yaml:"quote_url"`
	// Timeout bounds a single market API call
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig configures logging
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string `yaml:"level"`
	// Format is "text" or "json"
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	// Addr is the listen address for /metrics (empty = disabled)
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Models: *model.NewDefaultRegistry().ToConfig(),
		NATS: NATSConfig{
			URL: "",
		},
		Research: ResearchConfig{
			DefaultEntities: []string{
				"Cisco (Splunk/AppDynamics)",
				"DataDog",
				"Dynatrace",
			},
			Identifiers: map[string]string{
				"cisco":       "CSCO",
				"splunk":      "CSCO",
				"appdynamics": "CSCO",
				"datadog":     "DDOG",
				"dynatrace":   "DT",
			},
			MaxAgentTurns: 8,
			Temperature:   0.2,
		},
		Retry: RetryConfig{
			MaxAttempts:       3,
			BackoffBase:       time.Second,
			BackoffMultiplier: 2.0,
			MaxBackoff:        10 * time.Second,
		},
		Web: WebConfig{
			SearchURL:    "https://api.tavily.com/search",
			UserAgent:    "scout-research/1.0",
			FetchTimeout: 30 * time.Second,
			MaxPageBytes: 5 * 1024 * 1024,
		},
		Market: MarketConfig{
			QuoteURL: "https://query1.finance.yahoo.com",
			Timeout:  15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: "",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if len(c.Research.DefaultEntities) == 0 {
		return fmt.Errorf("research.default_entities must not be empty")
	}
	if c.Research.MaxAgentTurns < 1 {
		return fmt.Errorf("research.max_agent_turns must be at least 1")
	}
	if c.Research.Temperature < 0 || c.Research.Temperature > 1 {
		return fmt.Errorf("research.temperature must be between 0 and 1")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("retry.backoff_multiplier must be at least 1")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Models merge at the capability/endpoint level so a project config
	// can override one endpoint without restating the whole registry.
	for name, capCfg := range other.Models.Capabilities {
		if c.Models.Capabilities == nil {
			c.Models.Capabilities = make(map[string]*model.CapabilityConfig)
		}
		c.Models.Capabilities[name] = capCfg
	}
	for name, ep := range other.Models.Endpoints {
		if c.Models.Endpoints == nil {
			c.Models.Endpoints = make(map[string]*model.EndpointConfig)
		}
		c.Models.Endpoints[name] = ep
	}
	if other.Models.Defaults != nil && other.Models.Defaults.Model != "" {
		c.Models.Defaults = other.Models.Defaults
	}

	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}

	if len(other.Research.DefaultEntities) > 0 {
		c.Research.DefaultEntities = other.Research.DefaultEntities
	}
	for name, symbol := range other.Research.Identifiers {
		if c.Research.Identifiers == nil {
			c.Research.Identifiers = make(map[string]string)
		}
		c.Research.Identifiers[name] = symbol
	}
	if other.Research.MaxAgentTurns != 0 {
		c.Research.MaxAgentTurns = other.Research.MaxAgentTurns
	}
	if other.Research.Temperature != 0 {
		c.Research.Temperature = other.Research.Temperature
	}

	if other.Retry.MaxAttempts != 0 {
		c.Retry.MaxAttempts = other.Retry.MaxAttempts
	}
	if other.Retry.BackoffBase != 0 {
		c.Retry.BackoffBase = other.Retry.BackoffBase
	}
	if other.Retry.BackoffMultiplier != 0 {
		c.Retry.BackoffMultiplier = other.Retry.BackoffMultiplier
	}
	if other.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = other.Retry.MaxBackoff
	}

	if other.Web.SearchURL != "" {
		c.Web.SearchURL = other.Web.SearchURL
	}
	if other.Web.UserAgent != "" {
		c.Web.UserAgent = other.Web.UserAgent
	}
	if other.Web.FetchTimeout != 0 {
		c.Web.FetchTimeout = other.Web.FetchTimeout
	}
	if other.Web.MaxPageBytes != 0 {
		c.Web.MaxPageBytes = other.Web.MaxPageBytes
	}

	if other.Market.QuoteURL != "" {
		c.Market.QuoteURL = other.Market.QuoteURL
	}
	if other.Market.Timeout != 0 {
		c.Market.Timeout = other.Market.Timeout
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}

	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}
}

// RetryPolicy converts the YAML retry settings to the retry package's
// config type.
func (c *Config) RetryPolicy() retry.Config {
	return retry.Config{
		MaxAttempts:       c.Retry.MaxAttempts,
		BackoffBase:       c.Retry.BackoffBase,
		BackoffMultiplier: c.Retry.BackoffMultiplier,
		MaxBackoff:        c.Retry.MaxBackoff,
	}
}
