// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for irdrive. Values are layered
// defaults -> config file -> environment -> CLI flags, and the result is
// validated once after all layers are applied.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Auth    AuthConfig        `toml:"auth" json:"auth"`
	Storage StorageConfig     `toml:"storage" json:"storage"`
	Session SessionConfig     `toml:"session" json:"session"`
	Server  ServerConfig      `toml:"server" json:"server"`
	Network NetworkConfig     `toml:"network" json:"network"`
	Logging LoggingConfig     `toml:"logging" json:"logging"`
	Sites   map[string]string `toml:"sites" json:"sites"`
}

// AuthConfig identifies the app registration and tunes the sign-in flow.
type AuthConfig struct {
	TenantID     string        `toml:"tenant_id" json:"tenant_id"`
	ClientID     string        `toml:"client_id" json:"client_id"`
	ClientSecret string        `toml:"client_secret" json:"client_secret"`
	RedirectURI  string        `toml:"redirect_uri" json:"redirect_uri"`
	Authority    string        `toml:"authority" json:"authority"`
	ScopeProfile string        `toml:"scope_profile" json:"scope_profile"`
	Prompt       string        `toml:"prompt" json:"prompt"`
	ExpiryWindow time.Duration `toml:"expiry_window" json:"expiry_window"`
	FlowTTL      time.Duration `toml:"flow_ttl" json:"flow_ttl"`
}

// StorageConfig locates the incident report tree. One of SiteURL and
// DriveID selects the drive.
type StorageConfig struct {
	SiteURL           string `toml:"site_url" json:"site_url"`
	DriveID           string `toml:"drive_id" json:"drive_id"`
	RootPath          string `toml:"root_path" json:"root_path"`
	UploadParallelism int    `toml:"upload_parallelism" json:"upload_parallelism"`
}

// SessionConfig selects the session store backing.
type SessionConfig struct {
	Backend      string        `toml:"backend" json:"backend"`
	SQLitePath   string        `toml:"sqlite_path" json:"sqlite_path"`
	RedisURL     string        `toml:"redis_url" json:"redis_url"`
	SessionTTL   time.Duration `toml:"session_ttl" json:"session_ttl"`
	ReapInterval time.Duration `toml:"reap_interval" json:"reap_interval"`
}

// ServerConfig controls the web sign-in surface of `irdrive serve`.
type ServerConfig struct {
	Listen       string `toml:"listen" json:"listen"`
	CookieName   string `toml:"cookie_name" json:"cookie_name"`
	CookieSecure bool   `toml:"cookie_secure" json:"cookie_secure"`
}

// NetworkConfig controls HTTP client behavior. Metadata requests use
// RequestTimeout; uploads and downloads use UploadTimeout.
type NetworkConfig struct {
	GraphURL       string        `toml:"graph_url" json:"graph_url"`
	RequestTimeout time.Duration `toml:"request_timeout" json:"request_timeout"`
	UploadTimeout  time.Duration `toml:"upload_timeout" json:"upload_timeout"`
	UserAgent      string        `toml:"user_agent" json:"user_agent"`
}

// LoggingConfig controls log output: level, format, and destination.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level" json:"log_level"`
	LogFormat string `toml:"log_format" json:"log_format"`
	LogFile   string `toml:"log_file" json:"log_file"`
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish
// "not specified" (nil) from an explicit zero value.
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use env or default)
	Listen     *string // serve --listen
}

// Redacted returns a copy with the client secret masked, for display.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.Auth.ClientSecret != "" {
		cp.Auth.ClientSecret = redactedSecret
	}

	if cp.Session.RedisURL != "" {
		cp.Session.RedisURL = redactURL(cp.Session.RedisURL)
	}

	return &cp
}
