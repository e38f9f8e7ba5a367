package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Scheduler.IntervalSeconds != 60 {
		t.Errorf("interval = %d, want 60", cfg.Scheduler.IntervalSeconds)
	}
	if !cfg.Scheduler.CatchUp {
		t.Error("catch-up should default to on")
	}
	if cfg.Therefore.DetailFanOut != 10 {
		t.Errorf("detail fanout = %d, want 10", cfg.Therefore.DetailFanOut)
	}
	if cfg.General.DataDir == "" || cfg.General.DatabasePath == "" {
		t.Error("data locations not defaulted")
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if cfg.Scheduler.IntervalSeconds != 60 {
		t.Errorf("interval = %d, want default 60", cfg.Scheduler.IntervalSeconds)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[general]
data_dir = "~/reports/data"
timezone = "Europe/Berlin"

[scheduler]
interval_seconds = 30
catch_up = false

[therefore]
max_rows = 500
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}

	if cfg.Scheduler.IntervalSeconds != 30 {
		t.Errorf("interval = %d, want 30", cfg.Scheduler.IntervalSeconds)
	}
	if cfg.Scheduler.CatchUp {
		t.Error("catch_up should be off")
	}
	if cfg.Therefore.MaxRows != 500 {
		t.Errorf("max rows = %d, want 500", cfg.Therefore.MaxRows)
	}
	if cfg.General.Timezone != "Europe/Berlin" {
		t.Errorf("timezone = %q", cfg.General.Timezone)
	}
	// Untouched sections keep their defaults.
	if cfg.Therefore.DetailFanOut != 10 {
		t.Errorf("detail fanout = %d, want default 10", cfg.Therefore.DetailFanOut)
	}
	// Tilde paths are expanded on load.
	if strings.HasPrefix(cfg.General.DataDir, "~") {
		t.Errorf("data dir not expanded: %q", cfg.General.DataDir)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	if got := ExpandPath("~/x/y"); got != filepath.Join(home, "x", "y") {
		t.Errorf("ExpandPath(~/x/y) = %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandPath(/abs/path) = %q", got)
	}
}
