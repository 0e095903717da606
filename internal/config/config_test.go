package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
agent:
  id: test-agent
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Agent.LogLevel != "info" {
		t.Errorf("log level = %q, want info", cfg.Agent.LogLevel)
	}
	if cfg.Spool.StabilityWait != 2*time.Second {
		t.Errorf("stability wait = %v", cfg.Spool.StabilityWait)
	}
	if cfg.Processing.Workers != 4 {
		t.Errorf("workers = %d", cfg.Processing.Workers)
	}
	if cfg.State.CursorPath != "/var/lib/tornado-match/cursor.db" {
		t.Errorf("cursor path = %q", cfg.State.CursorPath)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
agent:
  id: node1
  state_dir: /tmp/state
  log_level: debug
spool:
  dir: /tmp/spool
  archive_dir: /tmp/archive
  stability_wait: 500ms
processing:
  path: /tmp/rules.d
  workers: 8
state:
  cursor_path: /tmp/state/cursor.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Spool.StabilityWait != 500*time.Millisecond {
		t.Errorf("stability wait = %v", cfg.Spool.StabilityWait)
	}
	if cfg.Processing.Workers != 8 {
		t.Errorf("workers = %d", cfg.Processing.Workers)
	}
}

func TestLoadRejectsRelativePaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
agent:
  id: test
spool:
  dir: relative/spool
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for relative spool dir")
	}
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
agent:
  id: test
  log_level: chatty
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown log level")
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TORNADO_TEST_SPOOL", "/tmp/env-spool")
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
agent:
  id: test
spool:
  dir: ${TORNADO_TEST_SPOOL}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Spool.Dir != "/tmp/env-spool" {
		t.Errorf("spool dir = %q", cfg.Spool.Dir)
	}
}
