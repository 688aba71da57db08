package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MIRADOR_LATENCY_CONFIG", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Correlation.MatchTolerance != 5*time.Second || cfg.Correlation.LinkTolerance != 5*time.Second {
		t.Fatalf("unexpected default tolerances: %+v", cfg.Correlation)
	}
	if !cfg.Correlation.RetainMatchedRequests {
		t.Fatalf("duplicate responses should be retained by default")
	}
	if len(cfg.Capture.Targets) != 2 || cfg.Capture.Targets[0].Port != 3000 {
		t.Fatalf("unexpected default targets: %+v", cfg.Capture.Targets)
	}
	if cfg.Runs.Slots != "1,2,3" || cfg.Runs.Network != "sepolia" {
		t.Fatalf("unexpected runs defaults: %+v", cfg.Runs)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(`capture:
  backend: native
  targets:
    - name: gateway
      port: 8080
      role: primary
      suffix: gw
correlation:
  matchTolerance: 2s
  retainMatchedRequests: false
eventLog:
  driver: none
`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MIRADOR_LATENCY_LINK_TOLERANCE", "750ms")
	t.Setenv("MIRADOR_LATENCY_LOG_FORMAT", "json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Capture.Backend != "native" || len(cfg.Capture.Targets) != 1 || cfg.Capture.Targets[0].Suffix != "gw" {
		t.Fatalf("file values not applied: %+v", cfg.Capture)
	}
	if cfg.Correlation.MatchTolerance != 2*time.Second {
		t.Fatalf("expected 2s match tolerance, got %s", cfg.Correlation.MatchTolerance)
	}
	if cfg.Correlation.LinkTolerance != 750*time.Millisecond {
		t.Fatalf("env override not applied: %s", cfg.Correlation.LinkTolerance)
	}
	if cfg.Correlation.RetainMatchedRequests {
		t.Fatalf("expected strict duplicate policy")
	}
	if !cfg.Logging.JSON {
		t.Fatalf("expected json logging")
	}
}

func TestLoadRejectsInvalidTargets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(`capture:
  targets:
    - name: rpc
      port: 8545
      role: secondary
`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error without a primary target")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
