package engage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFile(t *testing.T) {
	// WHAT: explicit YAML values survive loading; everything omitted
	// falls back to the defaults.
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
limits:
  global_qps: 10
solver:
  provider: 2captcha
  api_key: k-123
  poll_interval: 2s
identity:
  name: Jane Roe
browser:
  disabled: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Limits.GlobalQPS != 10 {
		t.Errorf("GlobalQPS = %v, want 10", cfg.Limits.GlobalQPS)
	}
	if cfg.Limits.PerDomainQPS != 2 {
		t.Errorf("PerDomainQPS default = %v, want 2", cfg.Limits.PerDomainQPS)
	}
	if cfg.Solver.Provider != "2captcha" || cfg.Solver.APIKey != "k-123" {
		t.Errorf("solver: %+v", cfg.Solver)
	}
	if cfg.Solver.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.Solver.PollInterval)
	}
	if cfg.Solver.InteractivePolls != 60 {
		t.Errorf("InteractivePolls default = %d, want 60", cfg.Solver.InteractivePolls)
	}
	if cfg.Identity.Name != "Jane Roe" {
		t.Errorf("Identity.Name = %q", cfg.Identity.Name)
	}
	if cfg.Identity.Email != "john.smith@example.com" {
		t.Errorf("Identity.Email default = %q", cfg.Identity.Email)
	}
	if !cfg.Browser.Disabled {
		t.Error("Browser.Disabled not honored")
	}
}

func TestLoadConfigFile_Missing(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestConfig_ZeroValueUsable(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()
	if cfg.Fetch.Timeout != 15*time.Second || cfg.Fetch.MaxBytes != 10<<20 {
		t.Errorf("fetch defaults: %+v", cfg.Fetch)
	}
	if cfg.Browser.NavTimeout != 30*time.Second {
		t.Errorf("NavTimeout default = %v", cfg.Browser.NavTimeout)
	}
}
