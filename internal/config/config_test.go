package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PAGEMIRROR_REMOTE_URL", "https://store.example.com")
	t.Setenv("PAGEMIRROR_REMOTE_TOKEN", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Root != "." {
		t.Errorf("Root = %q", cfg.Root)
	}
	if cfg.RemoteURL != "https://store.example.com" {
		t.Errorf("RemoteURL = %q", cfg.RemoteURL)
	}
	if cfg.PendingWindow != 3*time.Second {
		t.Errorf("PendingWindow = %v", cfg.PendingWindow)
	}
	if cfg.GateWindow != 500*time.Millisecond {
		t.Errorf("GateWindow = %v", cfg.GateWindow)
	}
	if cfg.TombstoneTTL != 30*time.Second {
		t.Errorf("TombstoneTTL = %v", cfg.TombstoneTTL)
	}
	if cfg.GateThreshold != 5 || cfg.GatePolicy != "prompt" {
		t.Errorf("gate = %d/%q", cfg.GateThreshold, cfg.GatePolicy)
	}
	if len(cfg.Collections) != 2 || cfg.Collections[0] != "pages" {
		t.Errorf("Collections = %v", cfg.Collections)
	}
	if cfg.Listen != "" {
		t.Errorf("Listen = %q, want disabled", cfg.Listen)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("PAGEMIRROR_ROOT", "/srv/site")
	t.Setenv("PAGEMIRROR_PENDING_WINDOW", "5s")
	t.Setenv("PAGEMIRROR_COLLECTIONS", "docs,notes")
	t.Setenv("PAGEMIRROR_GATE_POLICY", "allow")
	t.Setenv("PAGEMIRROR_GATE_THRESHOLD", "9")
	t.Setenv("PAGEMIRROR_LISTEN", "127.0.0.1:7923")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Root != "/srv/site" {
		t.Errorf("Root = %q", cfg.Root)
	}
	if cfg.PendingWindow != 5*time.Second {
		t.Errorf("PendingWindow = %v", cfg.PendingWindow)
	}
	if len(cfg.Collections) != 2 || cfg.Collections[0] != "docs" || cfg.Collections[1] != "notes" {
		t.Errorf("Collections = %v", cfg.Collections)
	}
	if cfg.GatePolicy != "allow" || cfg.GateThreshold != 9 {
		t.Errorf("gate = %q/%d", cfg.GatePolicy, cfg.GateThreshold)
	}
	if cfg.Listen != "127.0.0.1:7923" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
}

func TestLoadConfigFile(t *testing.T) {
	setRequiredEnv(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "pagemirror.yaml")
	content := strings.Join([]string{
		"root: /data/mirror",
		"loglevel: debug",
		"tombstonettl: 45s",
		"collections:",
		"  - pages",
		"  - posts",
		"  - docs",
	}, "\n")
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Root != "/data/mirror" {
		t.Errorf("Root = %q", cfg.Root)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.TombstoneTTL != 45*time.Second {
		t.Errorf("TombstoneTTL = %v", cfg.TombstoneTTL)
	}
	if len(cfg.Collections) != 3 {
		t.Errorf("Collections = %v", cfg.Collections)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	setRequiredEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidateListsAllMissing(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PAGEMIRROR_REMOTE_URL", "")
	t.Setenv("PAGEMIRROR_REMOTE_TOKEN", "")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "PAGEMIRROR_REMOTE_URL") || !strings.Contains(msg, "PAGEMIRROR_REMOTE_TOKEN") {
		t.Fatalf("error %q does not list both missing variables", msg)
	}
}

func TestValidateGatePolicy(t *testing.T) {
	setRequiredEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("PAGEMIRROR_GATE_POLICY", "maybe")

	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "gate policy") {
		t.Fatalf("expected gate policy error, got %v", err)
	}
}

func TestValidateGateThreshold(t *testing.T) {
	setRequiredEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("PAGEMIRROR_GATE_THRESHOLD", "0")

	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "gate threshold") {
		t.Fatalf("expected gate threshold error, got %v", err)
	}
}
