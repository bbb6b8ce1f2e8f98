// Package config loads termdeck's TOML configuration from ~/.termdeck.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	dark "github.com/thiagokokada/dark-mode-go"
)

// FileName is the TOML config file for user preferences.
const FileName = "config.toml"

// dirEnv overrides the base directory, mainly for tests and multi-profile
// setups.
const dirEnv = "TERMDECK_DIR"

// Config is the user-facing configuration.
type Config struct {
	// Theme sets the color scheme: "dark" (default), "light", or "system"
	Theme string `toml:"theme"`

	// Scrollback is the logical buffer line limit per session
	Scrollback int `toml:"scrollback"`

	// Sessions defines named sessions opened on startup
	Sessions map[string]SessionDef `toml:"sessions"`

	// Activity tunes the working/idle classifier
	Activity ActivitySettings `toml:"activity"`

	// Web configures the optional live-view server
	Web WebSettings `toml:"web"`

	// Logs configures debug logging
	Logs LogSettings `toml:"logs"`
}

// SessionDef describes one session to open at startup.
type SessionDef struct {
	// Cwd is the working directory (defaults to the current directory)
	Cwd string `toml:"cwd"`

	// Command to run; empty means the user's shell
	Command string `toml:"command"`

	// Env entries added to the child's environment
	Env map[string]string `toml:"env"`

	// Agent marks the session as an agent channel: its recent output is
	// readable by external consumers and scanned for plan file paths
	Agent bool `toml:"agent"`
}

// ActivitySettings tunes the activity classifier. Zero values fall back
// to the defaults.
type ActivitySettings struct {
	WarmupMs           int `toml:"warmup_ms"`
	InputSuppressionMs int `toml:"input_suppression_ms"`
	IdleTimeoutMs      int `toml:"idle_timeout_ms"`
}

// WebSettings configures the live-view server.
type WebSettings struct {
	// Enabled starts the server alongside the TUI
	Enabled bool `toml:"enabled"`

	// ListenAddr defaults to 127.0.0.1:8431
	ListenAddr string `toml:"listen_addr"`

	// ReadOnly disables input over websocket
	ReadOnly bool `toml:"read_only"`

	// Token, when set, is required as a bearer token on every request
	Token string `toml:"token"`
}

// LogSettings configures debug logging.
type LogSettings struct {
	Debug bool   `toml:"debug"`
	Level string `toml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Theme:      "dark",
		Scrollback: 10000,
	}
}

// Dir returns the base termdeck directory (~/.termdeck unless
// TERMDECK_DIR overrides it).
func Dir() (string, error) {
	if dir := os.Getenv(dirEnv); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".termdeck"), nil
}

// Path returns the config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load reads the config file, returning defaults when it does not exist.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads a specific config file.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Theme == "" {
		cfg.Theme = "dark"
	}
	if cfg.Scrollback <= 0 {
		cfg.Scrollback = 10000
	}
	return cfg, nil
}

// ResolveTheme maps the configured theme to "dark" or "light",
// consulting the OS appearance for "system". Detection failures fall
// back to dark.
func (c *Config) ResolveTheme() string {
	switch c.Theme {
	case "light":
		return "light"
	case "system":
		isDark, err := dark.IsDarkMode()
		if err == nil && !isDark {
			return "light"
		}
		return "dark"
	default:
		return "dark"
	}
}

// ActivityDurations converts the millisecond settings into durations,
// substituting defaults for unset values.
func (c *Config) ActivityDurations() (warmup, suppression, idle time.Duration) {
	warmup = 5 * time.Second
	suppression = 200 * time.Millisecond
	idle = 1 * time.Second
	if c.Activity.WarmupMs > 0 {
		warmup = time.Duration(c.Activity.WarmupMs) * time.Millisecond
	}
	if c.Activity.InputSuppressionMs > 0 {
		suppression = time.Duration(c.Activity.InputSuppressionMs) * time.Millisecond
	}
	if c.Activity.IdleTimeoutMs > 0 {
		idle = time.Duration(c.Activity.IdleTimeoutMs) * time.Millisecond
	}
	return warmup, suppression, idle
}
