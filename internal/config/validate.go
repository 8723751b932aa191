package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	minExpiryWindow      = 60 * time.Second
	maxUploadParallelism = 16
)

// ErrConfiguration matches every ConfigurationError.
var ErrConfiguration = errors.New("config: invalid configuration")

// ConfigurationError lists every missing key and every invalid value found,
// so one run reports everything that needs fixing.
type ConfigurationError struct {
	Missing  []string // dotted key names, e.g. auth.client_id
	Problems []string
}

func (e *ConfigurationError) Error() string {
	var parts []string

	if len(e.Missing) > 0 {
		parts = append(parts, "missing required keys: "+strings.Join(e.Missing, ", "))
	}

	parts = append(parts, e.Problems...)

	return "config: " + strings.Join(parts, "; ")
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// Validate checks all configuration values and returns a
// *ConfigurationError describing every problem, or nil.
func Validate(cfg *Config) error {
	ce := &ConfigurationError{}

	validateAuth(&cfg.Auth, ce)
	validateStorage(&cfg.Storage, ce)
	validateSession(&cfg.Session, ce)
	validateServer(&cfg.Server, ce)
	validateNetwork(&cfg.Network, ce)
	validateLogging(&cfg.Logging, ce)
	validateSites(cfg.Sites, ce)

	if len(ce.Missing) == 0 && len(ce.Problems) == 0 {
		return nil
	}

	return ce
}

func (e *ConfigurationError) missing(key, value string) {
	if strings.TrimSpace(value) == "" {
		e.Missing = append(e.Missing, key)
	}
}

func (e *ConfigurationError) problemf(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func validateAuth(a *AuthConfig, ce *ConfigurationError) {
	if a.Authority == "" {
		ce.missing("auth.tenant_id", a.TenantID)
	} else if !isAbsoluteURL(a.Authority) {
		ce.problemf("auth.authority %q is not an absolute URL", a.Authority)
	}

	ce.missing("auth.client_id", a.ClientID)
	ce.missing("auth.client_secret", a.ClientSecret)
	ce.missing("auth.redirect_uri", a.RedirectURI)

	if a.RedirectURI != "" && !isAbsoluteURL(a.RedirectURI) {
		ce.problemf("auth.redirect_uri %q is not an absolute URL", a.RedirectURI)
	}

	switch a.ScopeProfile {
	case ScopeReadOnly, ScopeReadWrite:
	default:
		ce.problemf("auth.scope_profile must be %q or %q, got %q", ScopeReadOnly, ScopeReadWrite, a.ScopeProfile)
	}

	if a.ExpiryWindow < minExpiryWindow {
		ce.problemf("auth.expiry_window must be at least %s, got %s", minExpiryWindow, a.ExpiryWindow)
	}

	if a.FlowTTL <= 0 {
		ce.problemf("auth.flow_ttl must be positive, got %s", a.FlowTTL)
	}
}

func validateStorage(s *StorageConfig, ce *ConfigurationError) {
	if s.SiteURL == "" && s.DriveID == "" {
		ce.Missing = append(ce.Missing, "storage.site_url or storage.drive_id")
	}

	if s.SiteURL != "" && !isAbsoluteURL(s.SiteURL) {
		ce.problemf("storage.site_url %q is not an absolute URL", s.SiteURL)
	}

	if s.UploadParallelism < 1 || s.UploadParallelism > maxUploadParallelism {
		ce.problemf("storage.upload_parallelism must be between 1 and %d, got %d",
			maxUploadParallelism, s.UploadParallelism)
	}
}

func validateSession(s *SessionConfig, ce *ConfigurationError) {
	switch s.Backend {
	case BackendMemory:
	case BackendSQLite:
		ce.missing("session.sqlite_path", s.SQLitePath)
	case BackendRedis:
		ce.missing("session.redis_url", s.RedisURL)
	default:
		ce.problemf("session.backend must be one of %s, %s, %s, got %q",
			BackendMemory, BackendSQLite, BackendRedis, s.Backend)
	}

	if s.SessionTTL <= 0 {
		ce.problemf("session.session_ttl must be positive, got %s", s.SessionTTL)
	}

	if s.ReapInterval <= 0 {
		ce.problemf("session.reap_interval must be positive, got %s", s.ReapInterval)
	}
}

func validateServer(s *ServerConfig, ce *ConfigurationError) {
	ce.missing("server.listen", s.Listen)
	ce.missing("server.cookie_name", s.CookieName)
}

func validateNetwork(n *NetworkConfig, ce *ConfigurationError) {
	if !isAbsoluteURL(n.GraphURL) {
		ce.problemf("network.graph_url must be an absolute URL, got %q", n.GraphURL)
	}

	if n.RequestTimeout <= 0 {
		ce.problemf("network.request_timeout must be positive, got %s", n.RequestTimeout)
	}

	if n.UploadTimeout <= 0 {
		ce.problemf("network.upload_timeout must be positive, got %s", n.UploadTimeout)
	}
}

func validateLogging(l *LoggingConfig, ce *ConfigurationError) {
	switch l.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		ce.problemf("logging.log_level must be debug, info, warn or error, got %q", l.LogLevel)
	}

	switch l.LogFormat {
	case "text", "json":
	default:
		ce.problemf("logging.log_format must be text or json, got %q", l.LogFormat)
	}
}

func validateSites(sites map[string]string, ce *ConfigurationError) {
	if len(sites) == 0 {
		ce.Missing = append(ce.Missing, "sites")
		return
	}

	for name, code := range sites {
		switch {
		case strings.TrimSpace(name) == "":
			ce.problemf("sites: location name must not be empty")
		case code == "":
			ce.problemf("sites: %q has an empty site code", name)
		case strings.ContainsAny(code, "-/ "):
			ce.problemf("sites: code %q for %q must not contain '-', '/' or spaces", code, name)
		}
	}
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)

	return err == nil && u.Scheme != "" && u.Host != ""
}
