package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all service configuration
type Config struct {
	General   GeneralConfig   `toml:"general"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Therefore ThereforeConfig `toml:"therefore"`
}

// GeneralConfig holds data locations and the processing timezone
type GeneralConfig struct {
	DataDir      string `toml:"data_dir"`
	DatabasePath string `toml:"database_path"`
	Timezone     string `toml:"timezone"`
}

// SchedulerConfig holds polling and run-lock settings
type SchedulerConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
	// CatchUp fires a report once for a window missed during downtime.
	// When off, missed windows are skipped entirely.
	CatchUp              bool `toml:"catch_up"`
	ShutdownGraceSeconds int  `toml:"shutdown_grace_seconds"`
	LockTTLMinutes       int  `toml:"lock_ttl_minutes"`
}

// ThereforeConfig holds upstream API client settings
type ThereforeConfig struct {
	HTTPTimeoutSeconds int `toml:"http_timeout_seconds"`
	DetailFanOut       int `toml:"detail_fanout"`
	MaxRows            int `toml:"max_rows"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DataDir:      filepath.Join(home, ".therenotify", "data"),
			DatabasePath: filepath.Join(home, ".therenotify", "therenotify.db"),
			Timezone:     "Local",
		},
		Scheduler: SchedulerConfig{
			IntervalSeconds:      60,
			CatchUp:              true,
			ShutdownGraceSeconds: 30,
			LockTTLMinutes:       60,
		},
		Therefore: ThereforeConfig{
			HTTPTimeoutSeconds: 300,
			DetailFanOut:       10,
			MaxRows:            10000,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.General.DataDir = ExpandPath(cfg.General.DataDir)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)

	return cfg, nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "therenotify", "config.toml")
}
