package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoadDefaults verifies the shipped defaults load without any file or
// environment present.
func TestLoadDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level info, got %q", cfg.Log.Level)
	}
	if cfg.Sync.LockTTL != 5*time.Minute {
		t.Errorf("Expected default lock TTL 5m, got %v", cfg.Sync.LockTTL)
	}
	if cfg.Sync.RetryCeiling != 5 {
		t.Errorf("Expected default retry ceiling 5, got %d", cfg.Sync.RetryCeiling)
	}
	if cfg.Sync.ConflictToleranceMs != 1000 {
		t.Errorf("Expected default tolerance 1000ms, got %d", cfg.Sync.ConflictToleranceMs)
	}
	if cfg.Sync.ConflictPolicy != "client_wins" {
		t.Errorf("Expected default policy client_wins, got %q", cfg.Sync.ConflictPolicy)
	}
	if !cfg.Remote.BreakerEnabled {
		t.Errorf("Expected breaker enabled by default")
	}
}

// TestLoadFromFile verifies YAML values override the defaults.
func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setforge.yaml")
	content := []byte(`
log:
  level: debug
sync:
  retry_ceiling: 3
  conflict_policy: server_wins
remote:
  base_url: https://api.example.com
`)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %q", cfg.Log.Level)
	}
	if cfg.Sync.RetryCeiling != 3 {
		t.Errorf("Expected retry ceiling 3, got %d", cfg.Sync.RetryCeiling)
	}
	if cfg.Sync.ConflictPolicy != "server_wins" {
		t.Errorf("Expected policy server_wins, got %q", cfg.Sync.ConflictPolicy)
	}
	if cfg.Remote.BaseURL != "https://api.example.com" {
		t.Errorf("Expected base URL from file, got %q", cfg.Remote.BaseURL)
	}
	// Untouched values keep their defaults.
	if cfg.Sync.LockTTL != 5*time.Minute {
		t.Errorf("Expected default lock TTL to survive, got %v", cfg.Sync.LockTTL)
	}
}

// TestLoadEnvOverridesFile verifies the environment is the top layer.
func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setforge.yaml")
	if err := os.WriteFile(path, []byte("sync:\n  retry_ceiling: 3\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("SETFORGE_SYNC__RETRY_CEILING", "7")
	t.Setenv("SETFORGE_REMOTE__API_KEY", "env-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Sync.RetryCeiling != 7 {
		t.Errorf("Expected env override 7, got %d", cfg.Sync.RetryCeiling)
	}
	if cfg.Remote.APIKey != "env-secret" {
		t.Errorf("Expected API key from env, got %q", cfg.Remote.APIKey)
	}
}

// TestLoadMissingFileIsError verifies an explicitly named but unreadable file
// fails loudly.
func TestLoadMissingFileIsError(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "nope.yaml"))

	if _, err := Load(); err == nil {
		t.Errorf("Expected error for missing explicit config file")
	}
}

// TestValidate verifies invariant checks on the resolved configuration.
func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero lock ttl", func(c *Config) { c.Sync.LockTTL = 0 }},
		{"zero retry ceiling", func(c *Config) { c.Sync.RetryCeiling = 0 }},
		{"negative tolerance", func(c *Config) { c.Sync.ConflictToleranceMs = -1 }},
		{"unknown policy", func(c *Config) { c.Sync.ConflictPolicy = "newest_wins" }},
		{"unknown log level", func(c *Config) { c.Log.Level = "trace" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Expected validation error")
			}
		})
	}

	if err := defaultConfig().Validate(); err != nil {
		t.Errorf("Defaults must validate, got %v", err)
	}
}
