package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadEmptyPathYieldsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("expected default listen addr, got %q", cfg.ListenAddr)
	}
	if len(cfg.Logging.Sinks) != 1 || cfg.Logging.Sinks[0] != "console" {
		t.Fatalf("expected console sink default, got %v", cfg.Logging.Sinks)
	}
	if cfg.Replication.WriteQueue != 64 {
		t.Fatalf("expected default write queue 64, got %d", cfg.Replication.WriteQueue)
	}
	if cfg.Store.NotifyBuffer != 16 {
		t.Fatalf("expected default notify buffer 16, got %d", cfg.Store.NotifyBuffer)
	}
}

func TestLoadOverridesAndBackfills(t *testing.T) {
	path := writeFile(t, `
listen_addr: ":9090"
logging:
  sinks: [console, json]
  json_file_path: /tmp/stats.log
  minimum_severity: warn
replication:
  write_queue: 8
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("expected listen addr override, got %q", cfg.ListenAddr)
	}
	if cfg.Logging.MinimumSeverity != "warn" {
		t.Fatalf("expected severity override, got %q", cfg.Logging.MinimumSeverity)
	}
	if cfg.Replication.WriteQueue != 8 {
		t.Fatalf("expected write queue override, got %d", cfg.Replication.WriteQueue)
	}
	// Unset fields still pick up defaults.
	if cfg.Logging.BufferSize != 256 {
		t.Fatalf("expected default buffer size, got %d", cfg.Logging.BufferSize)
	}
	if cfg.Replication.PingIntervalSec != 30 {
		t.Fatalf("expected default ping interval, got %d", cfg.Replication.PingIntervalSec)
	}
}

func TestLoadRejectsUnknownSink(t *testing.T) {
	path := writeFile(t, `
logging:
  sinks: [syslog]
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown sink")
	}
}

func TestLoadRejectsJSONSinkWithoutPath(t *testing.T) {
	path := writeFile(t, `
logging:
  sinks: [json]
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for json sink without file path")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
