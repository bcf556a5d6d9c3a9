// Package config loads and validates paramlens configuration from YAML,
// with environment overrides for the values people prefer to keep out of
// files (API token, datasheet ID).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all paramlens configuration.
type Config struct {
	// Host platform access
	API APIConfig `yaml:"api"`

	// Which datasheet and fields to check
	Datasheet DatasheetConfig `yaml:"datasheet"`

	// Local run history
	History HistoryConfig `yaml:"history"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the fusion API client.
type APIConfig struct {
	Token    string `yaml:"token" validate:"required"`
	BaseURL  string `yaml:"base_url" validate:"required,url"`
	Timeout  string `yaml:"timeout"`
	PageSize int    `yaml:"page_size" validate:"gte=0,lte=1000"`
}

// DatasheetConfig selects the datasheet and the fields to compare.
type DatasheetConfig struct {
	ID string `yaml:"id" validate:"required"`

	// Fields lists the field NAMES to include in comparison. Empty means
	// every text field participates.
	Fields []string `yaml:"fields"`
}

// HistoryConfig configures the local sqlite run history.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file"`   // optional log file, empty = stderr only
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		API: APIConfig{
			BaseURL:  "https://api.vika.cn/fusion/v1",
			Timeout:  "30s",
			PageSize: 100,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(home, ".paramlens", "history.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "paramlens.yaml"
	}
	return filepath.Join(home, ".paramlens", "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment variables override file values either way.
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

// Save writes the configuration to a YAML file, creating the directory.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if token := os.Getenv("PARAMLENS_TOKEN"); token != "" {
		c.API.Token = token
	}
	if url := os.Getenv("PARAMLENS_BASE_URL"); url != "" {
		c.API.BaseURL = url
	}
	if id := os.Getenv("PARAMLENS_DATASHEET"); id != "" {
		c.Datasheet.ID = id
	}
	if path := os.Getenv("PARAMLENS_DB"); path != "" {
		c.History.Path = path
	}
}

// Validate checks the configuration needed by the remote commands.
// Local-only commands (history, report from the store) skip this.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("config: %s fails %q validation", e.Namespace(), e.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// GetAPITimeout returns the API timeout as a duration.
func (c *Config) GetAPITimeout() time.Duration {
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
