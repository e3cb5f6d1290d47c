package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Name != "fieldlens" {
		t.Errorf("expected server name 'fieldlens', got %q", cfg.Server.Name)
	}
	if cfg.Server.TraceDir != "data/traces" {
		t.Errorf("expected trace dir 'data/traces', got %q", cfg.Server.TraceDir)
	}
	if cfg.Browser.DefaultLoadTimeout != "30s" {
		t.Errorf("expected load timeout '30s', got %q", cfg.Browser.DefaultLoadTimeout)
	}
	if cfg.Picker.PollInterval != "100ms" {
		t.Errorf("expected poll interval '100ms', got %q", cfg.Picker.PollInterval)
	}
	if cfg.Store.Path != "data/selectors.db" {
		t.Errorf("expected store path 'data/selectors.db', got %q", cfg.Store.Path)
	}
	if !cfg.Facts.Enable {
		t.Error("expected Facts.Enable to be true")
	}
	if cfg.Facts.FactBufferLimit != 2048 {
		t.Errorf("expected fact buffer limit 2048, got %d", cfg.Facts.FactBufferLimit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	_, err := Load("")
	if err == nil {
		t.Error("expected error for empty path")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `browser:
  debugger_url: ws://localhost:9222
  headless: false
picker:
  poll_interval: 250ms
store:
  path: /tmp/fieldlens-test.db
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Browser.DebuggerURL != "ws://localhost:9222" {
		t.Errorf("debugger_url = %q", cfg.Browser.DebuggerURL)
	}
	if cfg.Browser.IsHeadless() {
		t.Error("headless: false must override the default")
	}
	if cfg.Picker.Interval() != 250*time.Millisecond {
		t.Errorf("poll interval = %v", cfg.Picker.Interval())
	}
	// Untouched values keep their defaults.
	if cfg.Server.Name != "fieldlens" {
		t.Errorf("server name = %q", cfg.Server.Name)
	}
}

func TestValidateRequiresBrowser(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Browser.DebuggerURL = ""
	cfg.Browser.Launch = nil
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when no browser endpoint is configured")
	}
}

func TestValidateRequiresStore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when store path is missing")
	}
}

func TestDurationFallbacks(t *testing.T) {
	b := BrowserConfig{DefaultLoadTimeout: "garbage"}
	if b.LoadTimeout() != 30*time.Second {
		t.Errorf("expected fallback 30s, got %v", b.LoadTimeout())
	}
	p := PickerConfig{}
	if p.Interval() != 100*time.Millisecond {
		t.Errorf("expected fallback 100ms, got %v", p.Interval())
	}
	if p.Timeout() != 2*time.Second {
		t.Errorf("expected fallback 2s, got %v", p.Timeout())
	}
}

func TestDiscoverWorkspace(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(filepath.Join(root, WorkspaceDirName), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(root, WorkspaceDirName, WorkspaceConfigFile)
	if err := os.WriteFile(cfgPath, []byte("server:\n  name: fieldlens\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	found, err := DiscoverWorkspace(nested)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if found != root {
		t.Errorf("workspace = %q, want %q", found, root)
	}
}

func TestDiscoverWorkspaceNone(t *testing.T) {
	dir := t.TempDir()
	found, err := DiscoverWorkspace(dir)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if found != "" {
		t.Errorf("expected no workspace, got %q", found)
	}
}
