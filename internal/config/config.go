// Package config provides configuration loading for SetForge Core.
// Values are resolved in three layers: built-in defaults, an optional YAML
// file, then SETFORGE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	apperrors "github.com/kimhsiao/setforge/backend/internal/errors"
)

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "SETFORGE_CONFIG"

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found is used; no file at all is fine.
var DefaultConfigPaths = []string{
	"setforge.yaml",
	"setforge.yml",
}

// Config is the root configuration for the core.
type Config struct {
	Log    LogConfig    `koanf:"log"`
	Sync   SyncConfig   `koanf:"sync"`
	Remote RemoteConfig `koanf:"remote"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

// SyncConfig controls the synchronization engine and its trigger cadence.
type SyncConfig struct {
	LockTTL             time.Duration `koanf:"lock_ttl"`
	RetryCeiling        int           `koanf:"retry_ceiling"`
	ConflictToleranceMs int64         `koanf:"conflict_tolerance_ms"`
	ConflictPolicy      string        `koanf:"conflict_policy"` // client_wins, server_wins, manual
	Interval            time.Duration `koanf:"interval"`        // periodic trigger cadence
}

// RemoteConfig points the remote client at the data service.
type RemoteConfig struct {
	BaseURL        string        `koanf:"base_url"`
	APIKey         string        `koanf:"api_key"`
	Timeout        time.Duration `koanf:"timeout"`
	BreakerEnabled bool          `koanf:"breaker_enabled"`
}

// defaultConfig returns a Config with all sensible default values.
// These defaults are applied first, then overridden by file and env vars.
func defaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Sync: SyncConfig{
			LockTTL:             5 * time.Minute,
			RetryCeiling:        5,
			ConflictToleranceMs: 1000,
			ConflictPolicy:      "client_wins",
			Interval:            15 * time.Minute,
		},
		Remote: RemoteConfig{
			BaseURL:        "",
			APIKey:         "",
			Timeout:        30 * time.Second,
			BreakerEnabled: true,
		},
	}
}

// Load resolves the configuration from defaults, an optional YAML file and
// the environment. A missing file is not an error; an unreadable one is.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfigLoad, "failed to load defaults", err)
	}

	if path := configFilePath(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrConfigLoad,
				fmt.Sprintf("failed to load config file %s", path), err)
		}
	}

	// SETFORGE_SYNC__RETRY_CEILING=3 -> sync.retry_ceiling
	err := k.Load(env.Provider("SETFORGE_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "SETFORGE_")
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfigLoad, "failed to load environment", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfigLoad, "failed to unmarshal config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// configFilePath returns the config file to load, or "" when none exists.
func configFilePath() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Sync.LockTTL <= 0 {
		return apperrors.New(apperrors.ErrConfigInvalid, "sync.lock_ttl must be positive")
	}
	if c.Sync.RetryCeiling < 1 {
		return apperrors.New(apperrors.ErrConfigInvalid, "sync.retry_ceiling must be at least 1")
	}
	if c.Sync.ConflictToleranceMs < 0 {
		return apperrors.New(apperrors.ErrConfigInvalid, "sync.conflict_tolerance_ms must not be negative")
	}
	switch c.Sync.ConflictPolicy {
	case "client_wins", "server_wins", "manual":
	default:
		return apperrors.New(apperrors.ErrConfigInvalid,
			fmt.Sprintf("sync.conflict_policy %q is not one of client_wins, server_wins, manual", c.Sync.ConflictPolicy))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return apperrors.New(apperrors.ErrConfigInvalid,
			fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	return nil
}
