// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file. Every field is a
// pointer so the CLI can tell "unset" apart from a zero value when merging
// under flags.
type FileConfig struct {
	Record  RecordConfig  `toml:"record"`
	Resolve ResolveConfig `toml:"resolve"`
}

// RecordConfig maps capture-server settings.
type RecordConfig struct {
	Address      *string `toml:"address"`
	DatabasePath *string `toml:"database"`
}

// ResolveConfig maps pipeline settings.
type ResolveConfig struct {
	BaseURL       *string `toml:"base-url"`
	MaxCandidates *int    `toml:"max-candidates"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not
// an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// DefaultConfigPath returns the per-user config file location.
func DefaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "browsetrace-scribe", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "browsetrace-scribe", "config.toml")
}

// DefaultDataDir returns the platform-specific application data directory.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "BrowserTraceScribe"), nil
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "BrowserTraceScribe"), nil
	default: // linux and others
		return filepath.Join(home, ".local", "share", "BrowserTraceScribe"), nil
	}
}
