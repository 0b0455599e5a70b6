package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Profile != "default" {
		t.Errorf("Expected profile=default, got %s", cfg.Profile)
	}
	if filepath.Base(cfg.Database.Path) != "memories.db" {
		t.Errorf("Expected database path ending in memories.db, got %s", cfg.Database.Path)
	}

	if cfg.Memory.MaxMemories != 0 {
		t.Errorf("Expected MaxMemories=0 (unlimited), got %d", cfg.Memory.MaxMemories)
	}
	if cfg.Memory.SearchLimit != defaultSearchLimit {
		t.Errorf("Expected SearchLimit=%d, got %d", defaultSearchLimit, cfg.Memory.SearchLimit)
	}
	if !cfg.Memory.AutoRecall || !cfg.Memory.AutoExtract || !cfg.Memory.GlobalMemories {
		t.Error("Expected AutoRecall, AutoExtract, and GlobalMemories to default true")
	}
	if len(cfg.Memory.Categories) == 0 {
		t.Error("Expected non-empty default categories")
	}

	if !cfg.RestAPI.Enabled {
		t.Error("Expected RestAPI.Enabled=true")
	}
	if cfg.RestAPI.Port != 3002 {
		t.Errorf("Expected Port=3002, got %d", cfg.RestAPI.Port)
	}
	if cfg.RestAPI.Host != "localhost" {
		t.Errorf("Expected Host=localhost, got %s", cfg.RestAPI.Host)
	}
	if !cfg.RestAPI.CORS {
		t.Error("Expected CORS=true")
	}
	if len(cfg.RestAPI.AllowOrigins) != 0 {
		t.Error("Expected AllowOrigins to be empty by default")
	}

	if !cfg.Session.AutoGenerate {
		t.Error("Expected Session.AutoGenerate=true")
	}
	if cfg.Session.Strategy != "git-directory" {
		t.Errorf("Expected Strategy=git-directory, got %s", cfg.Session.Strategy)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Expected Logging.Level=info, got %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Expected Logging.Format=console, got %s", cfg.Logging.Format)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		expectErr bool
	}{
		{
			name:      "valid config",
			modify:    func(c *Config) {},
			expectErr: false,
		},
		{
			name: "empty database path",
			modify: func(c *Config) {
				c.Database.Path = ""
			},
			expectErr: true,
		},
		{
			name: "negative max memories",
			modify: func(c *Config) {
				c.Memory.MaxMemories = -1
			},
			expectErr: true,
		},
		{
			name: "invalid port",
			modify: func(c *Config) {
				c.RestAPI.Port = 99999
			},
			expectErr: true,
		},
		{
			name: "empty host when rest api enabled",
			modify: func(c *Config) {
				c.RestAPI.Host = ""
			},
			expectErr: true,
		},
		{
			name: "invalid session strategy",
			modify: func(c *Config) {
				c.Session.Strategy = "invalid"
			},
			expectErr: true,
		},
		{
			name: "invalid logging level",
			modify: func(c *Config) {
				c.Logging.Level = "invalid"
			},
			expectErr: true,
		},
		{
			name: "invalid logging format",
			modify: func(c *Config) {
				c.Logging.Format = "invalid"
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.expectErr && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestNormalizeResetsInvalidSearchLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Memory.SearchLimit = -5
	cfg.Memory.Categories = nil

	cfg.normalize()

	if cfg.Memory.SearchLimit != defaultSearchLimit {
		t.Errorf("Expected SearchLimit reset to %d, got %d", defaultSearchLimit, cfg.Memory.SearchLimit)
	}
	if len(cfg.Memory.Categories) == 0 {
		t.Error("Expected Categories to be reset to the default set")
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd) //nolint:errcheck
	_ = os.Chdir(tmpDir)

	oldDataDir := os.Getenv(dataDirEnvVar)
	os.Setenv(dataDirEnvVar, tmpDir)
	defer os.Setenv(dataDirEnvVar, oldDataDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error with missing config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected config, got nil")
	}
	if cfg.RestAPI.Port != 3002 {
		t.Errorf("Expected default port 3002, got %d", cfg.RestAPI.Port)
	}
}

func TestLoadConfig_WithFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
profile: test
database:
  path: /tmp/test-loomkeep.db
memory:
  max_memories: 500
  search_limit: 25
rest_api:
  enabled: true
  port: 4000
  host: 127.0.0.1
  cors: false
session:
  auto_generate: false
  strategy: manual
logging:
  level: debug
  format: json
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd) //nolint:errcheck
	_ = os.Chdir(tmpDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Profile != "test" {
		t.Errorf("Expected profile=test, got %s", cfg.Profile)
	}
	if cfg.Database.Path != "/tmp/test-loomkeep.db" {
		t.Errorf("Expected database path=/tmp/test-loomkeep.db, got %s", cfg.Database.Path)
	}
	if cfg.Memory.MaxMemories != 500 {
		t.Errorf("Expected max_memories=500, got %d", cfg.Memory.MaxMemories)
	}
	if cfg.Memory.SearchLimit != 25 {
		t.Errorf("Expected search_limit=25, got %d", cfg.Memory.SearchLimit)
	}
	if cfg.RestAPI.Port != 4000 {
		t.Errorf("Expected port=4000, got %d", cfg.RestAPI.Port)
	}
	if cfg.RestAPI.CORS {
		t.Error("Expected CORS=false, got true")
	}
	if cfg.Session.Strategy != "manual" {
		t.Errorf("Expected strategy=manual, got %s", cfg.Session.Strategy)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected level=debug, got %s", cfg.Logging.Level)
	}
}

func TestEnsureConfigDir(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &Config{
		Database: DatabaseConfig{
			Path: filepath.Join(tmpDir, "subdir", "test.db"),
		},
	}

	if err := cfg.EnsureConfigDir(); err != nil {
		t.Fatalf("EnsureConfigDir failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "subdir")); os.IsNotExist(err) {
		t.Error("Config directory was not created")
	}
}

func TestConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	oldDataDir := os.Getenv(dataDirEnvVar)
	os.Setenv(dataDirEnvVar, tmpDir)
	defer os.Setenv(dataDirEnvVar, oldDataDir)

	if path := ConfigPath(); path != tmpDir {
		t.Errorf("Expected %s, got %s", tmpDir, path)
	}
}

func TestDatabasePath(t *testing.T) {
	path := DatabasePath()
	if path == "" {
		t.Error("DatabasePath returned empty string")
	}
	if filepath.Base(path) != "memories.db" {
		t.Errorf("Expected database file named memories.db, got %s", filepath.Base(path))
	}
}
