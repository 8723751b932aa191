package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "irdrive"

// File names inside the config and data directories.
const (
	configFileName = "config.toml"
	sessionsDBName = "sessions.db"
	tokenFileName  = "token.json"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/irdrive).
// On macOS, uses ~/Library/Application Support/irdrive.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for application
// data (session database, token file).
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/irdrive).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

func xdgDir(envVar, fallbackBase string) string {
	if xdg := os.Getenv(envVar); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(fallbackBase, appName)
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() string {
	return inDir(DefaultConfigDir(), configFileName)
}

// DefaultSessionDBPath returns where the sqlite session store lives when
// [session] sqlite_path is unset.
func DefaultSessionDBPath() string {
	return inDir(DefaultDataDir(), sessionsDBName)
}

// DefaultTokenPath returns where `irdrive login` keeps the provider cache.
func DefaultTokenPath() string {
	return inDir(DefaultDataDir(), tokenFileName)
}

func inDir(dir, name string) string {
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, name)
}
