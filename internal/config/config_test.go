package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxSteps != 40 {
		t.Fatalf("MaxSteps = %d, want 40", cfg.MaxSteps)
	}
	if cfg.NavigationTimeout != 30*time.Second {
		t.Fatalf("NavigationTimeout = %v, want 30s", cfg.NavigationTimeout)
	}
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("max_steps: 10\ndefault_model: yaml-model\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MAX_STEPS", "99")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxSteps != 99 {
		t.Fatalf("MaxSteps = %d, want 99 (env should win)", cfg.MaxSteps)
	}
	if cfg.DefaultModel != "yaml-model" {
		t.Fatalf("DefaultModel = %q, want yaml-model", cfg.DefaultModel)
	}
}

func TestExpandEnvRefs(t *testing.T) {
	t.Setenv("MY_TOKEN", "secret123")
	got := expandEnvRefs("token: ${MY_TOKEN}")
	want := "token: secret123"
	if got != want {
		t.Fatalf("expandEnvRefs = %q, want %q", got, want)
	}
}

func TestCandidateListPrecedenceAndDedup(t *testing.T) {
	cfg := Default()
	cfg.VNCCDPURL = "http://127.0.0.1:9222"
	cfg.BrowserUseCDPURL = "http://alt:9222"
	cfg.CDPURL = ""

	got := cfg.CandidateList()
	want := []string{"http://127.0.0.1:9222", "http://alt:9222", "http://localhost:9222", "http://vnc:9222"}
	if len(got) != len(want) {
		t.Fatalf("CandidateList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("CandidateList[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestGetenvBool(t *testing.T) {
	t.Setenv("INDEX_MODE", "false")
	if getenvBool("INDEX_MODE", true) != false {
		t.Fatalf("expected false")
	}
}
