package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// WorkspaceDirName is the directory name for project-level fieldlens config.
	WorkspaceDirName = ".fieldlens"
	// WorkspaceConfigFile is the config file name inside the workspace directory.
	WorkspaceConfigFile = "config.yaml"
	// MaxSearchDepth limits how many parent directories to walk when discovering a workspace.
	MaxSearchDepth = 10
)

// Config captures all tunable settings for the fieldlens selector tool.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Browser BrowserConfig `yaml:"browser"`
	Picker  PickerConfig  `yaml:"picker"`
	Store   StoreConfig   `yaml:"store"`
	Schema  SchemaConfig  `yaml:"schema"`
	Facts   FactsConfig   `yaml:"facts"`
	MCP     MCPConfig     `yaml:"mcp"`
}

type ServerConfig struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"version"`
	LogFile  string `yaml:"log_file"`
	TraceDir string `yaml:"trace_dir"`
}

// BrowserConfig configures how we attach to or launch Chrome for Rod.
type BrowserConfig struct {
	// Control endpoint for Rod (e.g., ws://localhost:9222). Required when launch is empty.
	DebuggerURL string `yaml:"debugger_url"`
	// Optional launch command to start Chrome (e.g., ["chrome", "--remote-debugging-port=9222"]).
	Launch []string `yaml:"launch"`
	// Headless controls whether Chrome runs in headless mode (default: true).
	Headless *bool `yaml:"headless"`
	// Default page-load timeout (e.g., "30s").
	DefaultLoadTimeout string `yaml:"default_load_timeout"`
}

// PickerConfig tunes the controller's mailbox polling loop.
type PickerConfig struct {
	// Interval between mailbox polls (e.g., "100ms").
	PollInterval string `yaml:"poll_interval"`
	// Upper bound for one remote fetch (e.g., "2s").
	PollTimeout string `yaml:"poll_timeout"`
}

// StoreConfig locates the selector database.
type StoreConfig struct {
	// SQLite database path for saved selectors and test results.
	Path string `yaml:"path"`
}

// SchemaConfig locates the field schema definition.
type SchemaConfig struct {
	// YAML schema file; empty means the built-in equipment schema.
	Path string `yaml:"path"`
}

// FactsConfig controls the embedded deductive fact log.
type FactsConfig struct {
	Enable bool `yaml:"enable"`
	// Optional Mangle rules file evaluated over recorded facts.
	RulesPath string `yaml:"rules_path"`
	// Circular buffer limit for the temporal fact buffer.
	FactBufferLimit int `yaml:"fact_buffer_limit"`
}

type MCPConfig struct {
	// When set, starts an SSE server on this port instead of stdio-only.
	SSEPort int `yaml:"sse_port"`
}

// DefaultConfig provides reasonable defaults for local development.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:     "fieldlens",
			Version:  "0.3.0",
			LogFile:  "fieldlens.log",
			TraceDir: "data/traces",
		},
		Browser: BrowserConfig{
			Launch:             []string{"chrome"},
			DefaultLoadTimeout: "30s",
		},
		Picker: PickerConfig{
			PollInterval: "100ms",
			PollTimeout:  "2s",
		},
		Store: StoreConfig{
			Path: "data/selectors.db",
		},
		Facts: FactsConfig{
			Enable:          true,
			FactBufferLimit: 2048,
		},
	}
}

// Load reads YAML config from disk and overlays defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// DiscoverWorkspace walks up from startDir looking for a .fieldlens/config.yaml
// file. Returns the workspace root directory or empty string when none exists.
func DiscoverWorkspace(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving start directory: %w", err)
	}

	for i := 0; i < MaxSearchDepth; i++ {
		candidate := filepath.Join(dir, WorkspaceDirName, WorkspaceConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// LoadWithWorkspace implements the config merge:
//
//	DefaultConfig() <- .fieldlens/config.yaml <- explicit --config
//
// Returns the merged config and the workspace directory (empty if none found).
func LoadWithWorkspace(explicitConfig string) (Config, string, error) {
	cfg := DefaultConfig()

	cwd, err := os.Getwd()
	if err != nil {
		return cfg, "", fmt.Errorf("getting working directory: %w", err)
	}
	wsDir, err := DiscoverWorkspace(cwd)
	if err != nil {
		return cfg, "", fmt.Errorf("discovering workspace: %w", err)
	}

	if wsDir != "" {
		wsConfigPath := filepath.Join(wsDir, WorkspaceDirName, WorkspaceConfigFile)
		raw, err := os.ReadFile(wsConfigPath)
		if err != nil {
			return cfg, "", fmt.Errorf("reading workspace config %s: %w", wsConfigPath, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, "", fmt.Errorf("parsing workspace config %s: %w", wsConfigPath, err)
		}
		cfg = resolveWorkspacePaths(cfg, wsDir)
	}

	if explicitConfig != "" {
		raw, err := os.ReadFile(explicitConfig)
		if err != nil {
			return cfg, wsDir, fmt.Errorf("reading explicit config %s: %w", explicitConfig, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, wsDir, fmt.Errorf("parsing explicit config %s: %w", explicitConfig, err)
		}
	}

	return cfg, wsDir, cfg.Validate()
}

// resolveWorkspacePaths resolves relative paths against the workspace directory.
func resolveWorkspacePaths(cfg Config, wsDir string) Config {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(wsDir, p)
	}

	cfg.Server.LogFile = resolve(cfg.Server.LogFile)
	cfg.Server.TraceDir = resolve(cfg.Server.TraceDir)
	cfg.Store.Path = resolve(cfg.Store.Path)
	cfg.Schema.Path = resolve(cfg.Schema.Path)
	cfg.Facts.RulesPath = resolve(cfg.Facts.RulesPath)
	return cfg
}

// Validate ensures required fields exist so the tool can start deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.Browser.DebuggerURL == "" && len(c.Browser.Launch) == 0 {
		return errors.New("browser.debugger_url or browser.launch must be provided")
	}
	if c.Store.Path == "" {
		return errors.New("store.path is required")
	}
	return nil
}

// IsHeadless returns whether Chrome should run in headless mode (default: true).
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return true
	}
	return *b.Headless
}

// LoadTimeout returns the parsed page-load timeout with a sane default.
func (b BrowserConfig) LoadTimeout() time.Duration {
	return parseDuration(b.DefaultLoadTimeout, 30*time.Second)
}

// Interval returns the parsed poll interval with a sane default.
func (p PickerConfig) Interval() time.Duration {
	return parseDuration(p.PollInterval, 100*time.Millisecond)
}

// Timeout returns the parsed poll timeout with a sane default.
func (p PickerConfig) Timeout() time.Duration {
	return parseDuration(p.PollTimeout, 2*time.Second)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
