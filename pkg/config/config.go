package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/loomkeep/loomkeep/internal/database"
	"github.com/loomkeep/loomkeep/internal/ratelimit"
)

// dataDirEnvVar is honored for the default database path (spec §6
// "Environment: a user-data directory override variable").
const dataDirEnvVar = "LOOMKEEP_DATA_DIR"

// Config represents the complete application configuration.
type Config struct {
	Profile   string           `mapstructure:"profile"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Memory    MemoryConfig     `mapstructure:"memory"`
	RestAPI   RestAPIConfig    `mapstructure:"rest_api"`
	Session   SessionConfig    `mapstructure:"session"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	RateLimit ratelimit.Config `mapstructure:"rate_limit"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// MemoryConfig holds the spec §6 recognized configuration keys
// governing memory engine behavior.
type MemoryConfig struct {
	// Categories replaces the defaults when non-empty.
	Categories []string `mapstructure:"categories"`
	// MaxMemories is the cap enforced by Maintenance.enforceCap; 0 = unlimited.
	MaxMemories int `mapstructure:"max_memories"`
	AutoRecall  bool `mapstructure:"auto_recall"`
	AutoExtract bool `mapstructure:"auto_extract"`
	// SearchLimit must be a positive int; invalid values are ignored
	// and the default of 10 is kept (spec §6).
	SearchLimit    int    `mapstructure:"search_limit"`
	GlobalMemories bool   `mapstructure:"global_memories"`
	AgentModel     string `mapstructure:"agent_model"`
}

// RestAPIConfig holds REST API server configuration.
type RestAPIConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	AutoPort     bool     `mapstructure:"auto_port"`
	Port         int      `mapstructure:"port"`
	Host         string   `mapstructure:"host"`
	CORS         bool     `mapstructure:"cors"`
	APIKey       string   `mapstructure:"api_key"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// SessionConfig holds session management configuration.
type SessionConfig struct {
	AutoGenerate bool   `mapstructure:"auto_generate"`
	Strategy     string `mapstructure:"strategy"` // "git-directory", "manual", or "hash"
	ManualID     string `mapstructure:"manual_id"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

const defaultSearchLimit = 10

// dataDir resolves the user-data directory, honoring dataDirEnvVar
// before falling back to the home directory.
func dataDir() string {
	if override := os.Getenv(dataDirEnvVar); override != "" {
		return override
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".loomkeep")
}

// DefaultConfig returns configuration with the engine's default values.
func DefaultConfig() *Config {
	return &Config{
		Profile: "default",
		Database: DatabaseConfig{
			Path: filepath.Join(dataDir(), "memories.db"),
		},
		Memory: MemoryConfig{
			Categories:     append([]string(nil), database.DefaultCategories...),
			MaxMemories:    0,
			AutoRecall:     true,
			AutoExtract:    true,
			SearchLimit:    defaultSearchLimit,
			GlobalMemories: true,
			AgentModel:     "",
		},
		RestAPI: RestAPIConfig{
			Enabled:  true,
			AutoPort: true,
			Port:     3002,
			Host:     "localhost",
			CORS:     true,
		},
		Session: SessionConfig{
			AutoGenerate: true,
			Strategy:     "git-directory",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		RateLimit: *ratelimit.DefaultConfig(),
	}
}

// Load loads configuration from YAML file with fallback to defaults.
// Searches in multiple locations:
//  1. ./config.yaml (current directory)
//  2. $LOOMKEEP_DATA_DIR/config.yaml, or ~/.loomkeep/config.yaml
//  3. /etc/loomkeep/config.yaml (system-wide)
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	v.AddConfigPath(dataDir())
	v.AddConfigPath("/etc/loomkeep")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// normalize applies the spec §6 "invalid values ignored" rule for
// searchLimit: anything non-positive resets to the default.
func (c *Config) normalize() {
	if c.Memory.SearchLimit <= 0 {
		c.Memory.SearchLimit = defaultSearchLimit
	}
	if len(c.Memory.Categories) == 0 {
		c.Memory.Categories = append([]string(nil), database.DefaultCategories...)
	}
}

// setDefaults sets default values in Viper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("profile", "default")
	v.SetDefault("database.path", filepath.Join(dataDir(), "memories.db"))

	v.SetDefault("memory.categories", database.DefaultCategories)
	v.SetDefault("memory.max_memories", 0)
	v.SetDefault("memory.auto_recall", true)
	v.SetDefault("memory.auto_extract", true)
	v.SetDefault("memory.search_limit", defaultSearchLimit)
	v.SetDefault("memory.global_memories", true)
	v.SetDefault("memory.agent_model", "")

	v.SetDefault("rest_api.enabled", true)
	v.SetDefault("rest_api.auto_port", true)
	v.SetDefault("rest_api.port", 3002)
	v.SetDefault("rest_api.host", "localhost")
	v.SetDefault("rest_api.cors", true)

	v.SetDefault("session.auto_generate", true)
	v.SetDefault("session.strategy", "git-directory")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Memory.MaxMemories < 0 {
		return fmt.Errorf("memory.max_memories must be >= 0")
	}

	if c.RestAPI.Enabled {
		if c.RestAPI.Port < 1 || c.RestAPI.Port > 65535 {
			return fmt.Errorf("rest_api.port must be between 1 and 65535")
		}
		if c.RestAPI.Host == "" {
			return fmt.Errorf("rest_api.host is required when REST API is enabled")
		}
	}

	if c.Session.Strategy != "git-directory" && c.Session.Strategy != "manual" && c.Session.Strategy != "hash" {
		return fmt.Errorf("session.strategy must be 'git-directory', 'manual', or 'hash'")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func (c *Config) EnsureConfigDir() error {
	configDir := filepath.Dir(c.Database.Path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// ConfigPath returns the path to the configuration directory.
func ConfigPath() string {
	return dataDir()
}

// DatabasePath returns the default database path.
func DatabasePath() string {
	return filepath.Join(ConfigPath(), "memories.db")
}
