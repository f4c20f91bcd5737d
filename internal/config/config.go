package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const appName = "vo"

// Default loopback port range for window endpoints. Kept small so it is easy
// to allow in a firewall and to scan by hand.
const (
	DefaultPortRangeStart = 47301
	DefaultPortRangeEnd   = 47320
)

// VCS detection strategies.
const (
	VCSMarkers = "markers"
	VCSGit     = "git"
)

// ErrInvalid is wrapped by every validation error returned from Load.
var ErrInvalid = errors.New("invalid configuration")

// FallbackConfig describes the window-agnostic open command used when no
// verified window exists.
type FallbackConfig struct {
	Command  string   `json:"command"`
	Args     []string `json:"args,omitempty"`
	GotoFlag string   `json:"goto_flag"` // flag placed before file:line when a line is given
}

// ServeConfig configures the command-driven editor used by `vo serve`.
type ServeConfig struct {
	OpenCommand []string `json:"open_command,omitempty"`
	ZenCommand  []string `json:"zen_command,omitempty"`
}

// HandlerConfig maps file-type tags to a custom open command.
type HandlerConfig struct {
	Name string `json:"name"`
	// Types are lower-case extensions (".md") or, for extension-less
	// files, base names ("makefile").
	Types   []string `json:"types"`
	Command []string `json:"command"`
}

// Config represents application configuration
type Config struct {
	FallbackWorkspace string          `json:"fallback_workspace,omitempty"`
	PortRangeStart    int             `json:"port_range_start"`
	PortRangeEnd      int             `json:"port_range_end"`
	ProbeTimeoutMs    int             `json:"probe_timeout_ms"`
	OpenTimeoutMs     int             `json:"open_timeout_ms"`
	RegistryPath      string          `json:"registry_path,omitempty"`
	LogLevel          string          `json:"log_level"` // debug, info, warn, error, none
	LogPath           string          `json:"log_path,omitempty"`
	VCSDetection      string          `json:"vcs_detection"`
	Fallback          FallbackConfig  `json:"fallback"`
	Serve             ServeConfig     `json:"serve"`
	Handlers          []HandlerConfig `json:"handlers,omitempty"`
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", appName)
	default:
		if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
			return filepath.Join(configHome, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", appName)
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "linux":
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", appName)
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", appName)
	default:
		return defaultConfigDir()
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	stateDir := defaultStateDir()

	return &Config{
		PortRangeStart: DefaultPortRangeStart,
		PortRangeEnd:   DefaultPortRangeEnd,
		ProbeTimeoutMs: 300,
		OpenTimeoutMs:  900,
		RegistryPath:   filepath.Join(stateDir, "windows.json"),
		LogLevel:       "info",
		LogPath:        filepath.Join(stateDir, "vo.log"),
		VCSDetection:   VCSMarkers,
		Fallback: FallbackConfig{
			Command:  "code",
			GotoFlag: "--goto",
		},
	}
}

// Load loads configuration from path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	// Unmarshal into default config (overrides only provided fields)
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}

	defaults := DefaultConfig()
	if config.RegistryPath == "" {
		config.RegistryPath = defaults.RegistryPath
	}
	if config.LogPath == "" {
		config.LogPath = defaults.LogPath
	}
	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}
	if config.VCSDetection == "" {
		config.VCSDetection = defaults.VCSDetection
	}
	if config.Fallback.Command == "" {
		config.Fallback.Command = defaults.Fallback.Command
	}
	config.RegistryPath = expandHome(config.RegistryPath)
	config.LogPath = expandHome(config.LogPath)
	config.FallbackWorkspace = expandHome(config.FallbackWorkspace)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks value ranges and path shapes.
func (c *Config) Validate() error {
	if c.PortRangeStart <= 0 || c.PortRangeEnd > 65535 || c.PortRangeStart > c.PortRangeEnd {
		return fmt.Errorf("%w: port range %d-%d", ErrInvalid, c.PortRangeStart, c.PortRangeEnd)
	}
	if c.ProbeTimeoutMs <= 0 || c.OpenTimeoutMs <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalid)
	}
	if c.FallbackWorkspace != "" && !filepath.IsAbs(c.FallbackWorkspace) {
		return fmt.Errorf("%w: fallback_workspace must be absolute: %s", ErrInvalid, c.FallbackWorkspace)
	}
	if c.VCSDetection != VCSMarkers && c.VCSDetection != VCSGit {
		return fmt.Errorf("%w: vcs_detection %q", ErrInvalid, c.VCSDetection)
	}
	for _, h := range c.Handlers {
		if h.Name == "" || len(h.Command) == 0 || len(h.Types) == 0 {
			return fmt.Errorf("%w: handler %q needs name, types and command", ErrInvalid, h.Name)
		}
	}
	return nil
}

// ProbeTimeout is the deadline for one identity probe.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMs) * time.Millisecond
}

// OpenTimeout is the deadline for one open dispatch.
func (c *Config) OpenTimeout() time.Duration {
	return time.Duration(c.OpenTimeoutMs) * time.Millisecond
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// GetConfigPath returns the config path, honouring VO_CONFIG.
func GetConfigPath() string {
	if p := strings.TrimSpace(os.Getenv("VO_CONFIG")); p != "" {
		return expandHome(p)
	}
	return filepath.Join(defaultConfigDir(), "config.json")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}
