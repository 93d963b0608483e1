package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all browsernerd configuration.
type Config struct {
	// Browser process and CDP connection
	Browser BrowserConfig `yaml:"browser"`

	// DOM sampling
	Sampler SamplerConfig `yaml:"sampler"`

	// Snapshot persistence
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Element re-resolution
	Resolver ResolverConfig `yaml:"resolver"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// BrowserConfig configures the launcher, connection manager and tab manager.
type BrowserConfig struct {
	Host              string      `yaml:"host"`
	Port              int         `yaml:"port"`
	Headless          bool        `yaml:"headless"`
	Stealth           bool        `yaml:"stealth"`
	ExecutablePath    string      `yaml:"executable_path"`
	UserDataDir       string      `yaml:"user_data_dir"`
	UserAgent         string      `yaml:"user_agent"`
	ExtraArgs         []string    `yaml:"extra_args"`
	NavigationTimeout string      `yaml:"navigation_timeout"`
	TabLoadTimeout    string      `yaml:"tab_load_timeout"`
	Retry             RetryConfig `yaml:"retry"`
}

// RetryConfig configures the bounded polling used while launching and connecting.
type RetryConfig struct {
	Attempts    int    `yaml:"attempts"`
	Interval    string `yaml:"interval"`
	Exponential bool   `yaml:"exponential"` // jittered exponential instead of fixed delay
	MaxElapsed  string `yaml:"max_elapsed"`
}

// SamplerConfig configures DOM compression.
type SamplerConfig struct {
	MaxTokens     int    `yaml:"max_tokens"` // 0 = pick from page size
	MaxIterations int    `yaml:"max_iterations"`
	MaxAttempts   int    `yaml:"max_attempts"`
	FilterHidden  bool   `yaml:"filter_hidden"`
	Tokenizer     string `yaml:"tokenizer"` // estimate, tiktoken
}

// SnapshotConfig configures the snapshot store.
type SnapshotConfig struct {
	Backend       string `yaml:"backend"` // memory, sqlite
	Path          string `yaml:"path"`
	MaxPerSession int    `yaml:"max_per_session"`
}

// ResolverConfig configures locator re-resolution.
type ResolverConfig struct {
	MinConfidence float64 `yaml:"min_confidence"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Host:              "127.0.0.1",
			Port:              9222,
			Headless:          true,
			NavigationTimeout: "30s",
			TabLoadTimeout:    "5s",
			Retry: RetryConfig{
				Attempts:   10,
				Interval:   "500ms",
				MaxElapsed: "5s",
			},
		},
		Sampler: SamplerConfig{
			MaxIterations: 5,
			MaxAttempts:   3,
			FilterHidden:  true,
			Tokenizer:     "estimate",
		},
		Snapshot: SnapshotConfig{
			Backend:       "sqlite",
			Path:          filepath.Join(".browsernerd", "snapshots.db"),
			MaxPerSession: 3,
		},
		Resolver: ResolverConfig{
			MinConfidence: 0.75,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults, still subject to the environment
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

// applyEnvOverrides applies BROWSERNERD_* environment variables.
func (c *Config) applyEnvOverrides() {
	if host := os.Getenv("BROWSERNERD_HOST"); host != "" {
		c.Browser.Host = host
	}
	if port := os.Getenv("BROWSERNERD_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Browser.Port = p
		}
	}
	if v := os.Getenv("BROWSERNERD_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		}
	}
	if v := os.Getenv("BROWSERNERD_STEALTH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Stealth = b
		}
	}
	if path := os.Getenv("BROWSERNERD_CHROME_PATH"); path != "" {
		c.Browser.ExecutablePath = path
	}
	if lvl := os.Getenv("BROWSERNERD_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
	if path := os.Getenv("BROWSERNERD_SNAPSHOT_DB"); path != "" {
		c.Snapshot.Path = path
		c.Snapshot.Backend = "sqlite"
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetNavigationTimeout returns the navigation wait timeout.
func (c *Config) GetNavigationTimeout() time.Duration {
	return parseDuration(c.Browser.NavigationTimeout, 30*time.Second)
}

// GetTabLoadTimeout returns the tab creation load wait.
func (c *Config) GetTabLoadTimeout() time.Duration {
	return parseDuration(c.Browser.TabLoadTimeout, 5*time.Second)
}

// GetRetryInterval returns the launch/connect polling interval.
func (c *Config) GetRetryInterval() time.Duration {
	return parseDuration(c.Browser.Retry.Interval, 500*time.Millisecond)
}

// GetRetryMaxElapsed bounds exponential retries.
func (c *Config) GetRetryMaxElapsed() time.Duration {
	return parseDuration(c.Browser.Retry.MaxElapsed, 5*time.Second)
}

// GetRetryAttempts returns the launch/connect attempt budget.
func (c *Config) GetRetryAttempts() int {
	if c.Browser.Retry.Attempts <= 0 {
		return 10
	}
	return c.Browser.Retry.Attempts
}

// ValidSnapshotBackends lists the supported snapshot stores.
var ValidSnapshotBackends = []string{"memory", "sqlite"}

// ValidTokenizers lists the supported token counters.
var ValidTokenizers = []string{"estimate", "tiktoken"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Browser.Port <= 0 || c.Browser.Port > 65535 {
		return fmt.Errorf("invalid browser port: %d", c.Browser.Port)
	}
	if c.Browser.Host == "" {
		return fmt.Errorf("browser host must not be empty")
	}
	if !contains(ValidSnapshotBackends, c.Snapshot.Backend) {
		return fmt.Errorf("invalid snapshot backend: %s (valid: %v)", c.Snapshot.Backend, ValidSnapshotBackends)
	}
	if c.Snapshot.Backend == "sqlite" && c.Snapshot.Path == "" {
		return fmt.Errorf("snapshot path required for sqlite backend")
	}
	if c.Sampler.Tokenizer != "" && !contains(ValidTokenizers, c.Sampler.Tokenizer) {
		return fmt.Errorf("invalid tokenizer: %s (valid: %v)", c.Sampler.Tokenizer, ValidTokenizers)
	}
	if c.Resolver.MinConfidence < 0 || c.Resolver.MinConfidence > 1 {
		return fmt.Errorf("resolver min_confidence must be in [0,1], got %v", c.Resolver.MinConfidence)
	}
	if c.Sampler.MaxTokens < 0 {
		return fmt.Errorf("sampler max_tokens must not be negative")
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
