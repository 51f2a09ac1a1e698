package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "memoryos.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validConfig = `
[general]
tick_interval = "60s"
max_per_tick = 10
log_level = "info"
state_db = "/tmp/memoryos-test.db"
`

func TestLoadValidConfig(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.General.TickInterval.Duration != 60*time.Second {
		t.Errorf("TickInterval = %v, want 60s", cfg.General.TickInterval)
	}
	if cfg.General.MaxPerTick != 10 {
		t.Errorf("MaxPerTick = %d, want 10", cfg.General.MaxPerTick)
	}
	if cfg.General.StateDB != "/tmp/memoryos-test.db" {
		t.Errorf("StateDB = %q, want /tmp/memoryos-test.db", cfg.General.StateDB)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := `
[general]
state_db = "/tmp/memoryos-test.db"
`
	path := writeTestConfig(t, cfg)
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.General.TickInterval.Duration != 60*time.Second {
		t.Errorf("default TickInterval = %v, want 60s", loaded.General.TickInterval)
	}
	if loaded.General.MaxPerTick != 3 {
		t.Errorf("default MaxPerTick = %d, want 3", loaded.General.MaxPerTick)
	}
	if loaded.General.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want info", loaded.General.LogLevel)
	}
	if loaded.Runtime.MaxIterations != 25 {
		t.Errorf("default Runtime.MaxIterations = %d, want 25", loaded.Runtime.MaxIterations)
	}
	if loaded.Runtime.ExecutorRole != "coder" {
		t.Errorf("default Runtime.ExecutorRole = %q, want coder", loaded.Runtime.ExecutorRole)
	}
	if loaded.Firewall.MaxSteps != 200 {
		t.Errorf("default Firewall.MaxSteps = %d, want 200", loaded.Firewall.MaxSteps)
	}
	if loaded.Router.QualityThreshold != 0.7 {
		t.Errorf("default Router.QualityThreshold = %v, want 0.7", loaded.Router.QualityThreshold)
	}
}

func TestLoadStateDBMissingDir(t *testing.T) {
	cfg := `
[general]
state_db = "/no/such/dir/memoryos.db"
`
	path := writeTestConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing state_db directory")
	}
}

func TestDurationUnmarshal(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"60s", 60 * time.Second},
		{"2m", 2 * time.Minute},
		{"1h", time.Hour},
		{"500ms", 500 * time.Millisecond},
	}
	for _, tt := range tests {
		var d Duration
		if err := d.UnmarshalText([]byte(tt.input)); err != nil {
			t.Errorf("UnmarshalText(%q) error: %v", tt.input, err)
			continue
		}
		if d.Duration != tt.want {
			t.Errorf("UnmarshalText(%q) = %v, want %v", tt.input, d.Duration, tt.want)
		}
	}
}

func TestDurationUnmarshalInvalid(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("not-a-duration")); err == nil {
		t.Error("expected error for invalid duration")
	}
}
