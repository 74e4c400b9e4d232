// Package config loads ticketsmith configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all ticketsmith configuration.
type Config struct {
	// LLM generator configuration
	LLM LLMConfig `yaml:"llm"`

	// Breakdown pipeline settings
	Breakdown BreakdownConfig `yaml:"breakdown"`

	// Issue tracker integration
	Tracker TrackerConfig `yaml:"tracker"`

	// Local persistence
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the generator client.
type LLMConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	TopP        float32 `yaml:"top_p"`
	TopK        float32 `yaml:"top_k"`
	MaxTokens   int32   `yaml:"max_tokens"`
}

// BreakdownConfig configures the orchestrator and its enrichments.
// ConcurrencyLimit 0 means min(GOMAXPROCS, item count) at fan-out time.
type BreakdownConfig struct {
	ConcurrencyLimit  int  `yaml:"concurrency_limit"`
	FormatFixAttempts int  `yaml:"format_fix_attempts"`
	EnableResearch    bool `yaml:"enable_research"`
	EnableCodeBlocks  bool `yaml:"enable_code_blocks"`
	EnableTestPlans   bool `yaml:"enable_test_plans"`
	EnableScenarios   bool `yaml:"enable_scenarios"`
}

// TrackerConfig configures the Jira integration.
type TrackerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BaseURL    string `yaml:"base_url"`
	Email      string `yaml:"email"`
	APIToken   string `yaml:"api_token"`
	ProjectKey string `yaml:"project_key"`
}

// StoreConfig configures the local SQLite store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	Debug bool   `yaml:"debug"`
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:       "gemini-2.0-flash",
			Temperature: 0.2,
			TopP:        0.8,
			TopK:        40,
			MaxTokens:   8192,
		},
		Breakdown: BreakdownConfig{
			ConcurrencyLimit:  0,
			FormatFixAttempts: 3,
			EnableResearch:    true,
			EnableCodeBlocks:  false,
			EnableTestPlans:   true,
			EnableScenarios:   false,
		},
		Store: StoreConfig{
			DatabasePath: filepath.Join(".ticketsmith", "ticketsmith.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
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

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("TICKETSMITH_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if limit := os.Getenv("TICKETSMITH_CONCURRENCY"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n >= 0 {
			c.Breakdown.ConcurrencyLimit = n
		}
	}
	if url := os.Getenv("JIRA_BASE_URL"); url != "" {
		c.Tracker.BaseURL = url
	}
	if email := os.Getenv("JIRA_EMAIL"); email != "" {
		c.Tracker.Email = email
	}
	if token := os.Getenv("JIRA_API_TOKEN"); token != "" {
		c.Tracker.APIToken = token
	}
	if path := os.Getenv("TICKETSMITH_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if os.Getenv("TICKETSMITH_DEBUG") != "" {
		c.Logging.Debug = true
	}
}

// Validate checks settings that have no workable default.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (or set GEMINI_API_KEY)")
	}
	if c.Tracker.Enabled {
		if c.Tracker.BaseURL == "" || c.Tracker.Email == "" || c.Tracker.APIToken == "" {
			return fmt.Errorf("tracker.base_url, tracker.email and tracker.api_token are required when the tracker is enabled")
		}
	}
	return nil
}
