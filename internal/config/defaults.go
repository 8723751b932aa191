package config

import "time"

// Default values for configuration options. These are layer 0 of the
// override chain.
const (
	DefaultRootPath = "Ground Station Operations/Installations, Maintenance and Repair/Incident Reports"

	defaultRedirectURI       = "http://localhost:8400/auth/callback"
	defaultScopeProfile      = ScopeReadWrite
	defaultPrompt            = "select_account"
	defaultExpiryWindow      = 120 * time.Second
	defaultFlowTTL           = 10 * time.Minute
	defaultUploadParallelism = 4
	defaultBackend           = BackendMemory
	defaultRedisURL          = "redis://127.0.0.1:6379/0"
	defaultSessionTTL        = 12 * time.Hour
	defaultReapInterval      = time.Minute
	defaultListen            = "localhost:8400"
	defaultCookieName        = "irdrive_session"
	defaultGraphURL          = "https://graph.microsoft.com/v1.0"
	defaultRequestTimeout    = 30 * time.Second
	defaultUploadTimeout     = 60 * time.Second
	defaultUserAgent         = "irdrive/0.1"
	defaultLogLevel          = "info"
	defaultLogFormat         = "text"
)

// Scope profiles.
const (
	ScopeReadOnly  = "read_only"
	ScopeReadWrite = "read_write"
)

// Session store backings.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// DefaultSites maps the two ground station locations to their site codes.
func DefaultSites() map[string]string {
	return map[string]string{
		"Davao City":  "DVO",
		"Quezon City": "QZN",
	}
}

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Auth: AuthConfig{
			RedirectURI:  defaultRedirectURI,
			ScopeProfile: defaultScopeProfile,
			Prompt:       defaultPrompt,
			ExpiryWindow: defaultExpiryWindow,
			FlowTTL:      defaultFlowTTL,
		},
		Storage: StorageConfig{
			RootPath:          DefaultRootPath,
			UploadParallelism: defaultUploadParallelism,
		},
		Session: SessionConfig{
			Backend:      defaultBackend,
			RedisURL:     defaultRedisURL,
			SessionTTL:   defaultSessionTTL,
			ReapInterval: defaultReapInterval,
		},
		Server: ServerConfig{
			Listen:     defaultListen,
			CookieName: defaultCookieName,
		},
		Network: NetworkConfig{
			GraphURL:       defaultGraphURL,
			RequestTimeout: defaultRequestTimeout,
			UploadTimeout:  defaultUploadTimeout,
			UserAgent:      defaultUserAgent,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Sites: DefaultSites(),
	}
}
