package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Fatalf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.Debug || cfg.Trace {
		t.Fatalf("Debug/Trace should default false: %+v", cfg)
	}
}

func TestParsePositionalPort(t *testing.T) {
	cfg, err := Parse([]string{"-debug", "4201"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Port != 4201 {
		t.Fatalf("Port = %d, want 4201", cfg.Port)
	}
	if !cfg.Debug {
		t.Fatalf("Debug should be true")
	}
}

func TestParseRejectsBadPort(t *testing.T) {
	if _, err := Parse([]string{"notaport"}); err == nil {
		t.Fatalf("expected error for invalid positional port")
	}
}

func TestTraceFilters(t *testing.T) {
	cfg := Config{Filter: "alice*, bob "}
	got := cfg.TraceFilters()
	want := []string{"alice*", "bob"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("TraceFilters = %v, want %v", got, want)
	}
}

func TestParseLoadsYAMLTuning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parlor.yaml")
	content := "detach_timeout_seconds: 120\nwidth: 100\nbacklog: 16\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Parse([]string{"-config", path})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.DetachTimeout != 120*time.Second {
		t.Fatalf("DetachTimeout = %v, want 120s", cfg.DetachTimeout)
	}
	if cfg.Width != 100 {
		t.Fatalf("Width = %d, want 100", cfg.Width)
	}
	if cfg.Backlog != 16 {
		t.Fatalf("Backlog = %d, want 16", cfg.Backlog)
	}
}
