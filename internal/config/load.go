package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file on top of the defaults. Unknown
// keys are fatal with "did you mean" suggestions. Load does not validate:
// required values may still arrive from the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// A [sites] table replaces the default locations instead of merging
	// into them.
	cfg.Sites = nil

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if !md.IsDefined("sites") {
		cfg.Sites = DefaultSites()
	} else if cfg.Sites == nil {
		cfg.Sites = map[string]string{}
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// the defaults. A deployment configured purely through environment
// variables needs no file.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// ConfigPath picks the config file: --config, then IRDRIVE_CONFIG, then the
// platform default.
func ConfigPath(env EnvOverrides, cli CLIOverrides) string {
	switch {
	case cli.ConfigPath != "":
		return cli.ConfigPath
	case env.ConfigPath != "":
		return env.ConfigPath
	default:
		return DefaultConfigPath()
	}
}

// Resolve applies the override chain defaults -> file -> environment ->
// CLI flags and validates the result. It returns the config and the file
// path it was read from.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, string, error) {
	path := ConfigPath(env, cli)

	cfg, err := resolveFile(path, env, cli)
	if err != nil {
		return nil, path, err
	}

	return cfg, path, nil
}

// ResolveUnvalidated is Resolve without validation, for commands that only
// need paths or logging settings and must work on an incomplete config.
func ResolveUnvalidated(env EnvOverrides, cli CLIOverrides) (*Config, string, error) {
	path := ConfigPath(env, cli)

	cfg, err := layer(path, env, cli)
	if err != nil {
		return nil, path, err
	}

	return cfg, path, nil
}

func resolveFile(path string, env EnvOverrides, cli CLIOverrides) (*Config, error) {
	cfg, err := layer(path, env, cli)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func layer(path string, env EnvOverrides, cli CLIOverrides) (*Config, error) {
	cfg, err := LoadOrDefault(path)
	if err != nil {
		return nil, err
	}

	env.Apply(cfg)

	if cli.Listen != nil {
		cfg.Server.Listen = *cli.Listen
	}

	if cfg.Session.Backend == BackendSQLite && cfg.Session.SQLitePath == "" {
		cfg.Session.SQLitePath = DefaultSessionDBPath()
	}

	return cfg, nil
}
