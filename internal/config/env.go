package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig         = "IRDRIVE_CONFIG"
	EnvTenantID       = "IRDRIVE_TENANT_ID"
	EnvClientID       = "IRDRIVE_CLIENT_ID"
	EnvClientSecret   = "IRDRIVE_CLIENT_SECRET"
	EnvRedirectURI    = "IRDRIVE_REDIRECT_URI"
	EnvSiteURL        = "IRDRIVE_SITE_URL"
	EnvDriveID        = "IRDRIVE_DRIVE_ID"
	EnvSessionBackend = "IRDRIVE_SESSION_BACKEND"
	EnvRedisURL       = "IRDRIVE_REDIS_URL"
)

// EnvOverrides holds values derived from environment variables. Empty
// fields leave the config untouched.
type EnvOverrides struct {
	ConfigPath     string
	TenantID       string
	ClientID       string
	ClientSecret   string
	RedirectURI    string
	SiteURL        string
	DriveID        string
	SessionBackend string
	RedisURL       string
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:     os.Getenv(EnvConfig),
		TenantID:       os.Getenv(EnvTenantID),
		ClientID:       os.Getenv(EnvClientID),
		ClientSecret:   os.Getenv(EnvClientSecret),
		RedirectURI:    os.Getenv(EnvRedirectURI),
		SiteURL:        os.Getenv(EnvSiteURL),
		DriveID:        os.Getenv(EnvDriveID),
		SessionBackend: os.Getenv(EnvSessionBackend),
		RedisURL:       os.Getenv(EnvRedisURL),
	}
}

// Apply copies the set overrides into cfg.
func (e EnvOverrides) Apply(cfg *Config) {
	setIf(&cfg.Auth.TenantID, e.TenantID)
	setIf(&cfg.Auth.ClientID, e.ClientID)
	setIf(&cfg.Auth.ClientSecret, e.ClientSecret)
	setIf(&cfg.Auth.RedirectURI, e.RedirectURI)
	setIf(&cfg.Storage.SiteURL, e.SiteURL)
	setIf(&cfg.Storage.DriveID, e.DriveID)
	setIf(&cfg.Session.Backend, e.SessionBackend)
	setIf(&cfg.Session.RedisURL, e.RedisURL)
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
