package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// Defaults applied by NewManager to zero-valued Config fields.
const (
	DefaultExpiryWindow = 120 * time.Second
	MinExpiryWindow     = 60 * time.Second
	DefaultFlowTTL      = 10 * time.Minute
	DefaultSessionTTL   = 12 * time.Hour
	DefaultPrompt       = "select_account"

	// Tokens without an expires_in are assumed to live this long.
	fallbackTokenLifetime = time.Hour
)

// Config holds the identity provider settings for one confidential client.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Authority overrides the tenant endpoint, e.g. a sovereign cloud or a
	// test server. Endpoints are {Authority}/oauth2/v2.0/{authorize,token}.
	Authority string

	Prompt       string
	ScopeProfile string

	ExpiryWindow time.Duration
	FlowTTL      time.Duration
	SessionTTL   time.Duration
}

func (c *Config) applyDefaults() {
	if c.Prompt == "" {
		c.Prompt = DefaultPrompt
	}

	if c.ScopeProfile == "" {
		c.ScopeProfile = ProfileReadWrite
	}

	if c.ExpiryWindow == 0 {
		c.ExpiryWindow = DefaultExpiryWindow
	}

	if c.FlowTTL == 0 {
		c.FlowTTL = DefaultFlowTTL
	}

	if c.SessionTTL == 0 {
		c.SessionTTL = DefaultSessionTTL
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.ClientID == "" {
		problems = append(problems, "client_id is required")
	}

	if c.ClientSecret == "" {
		problems = append(problems, "client_secret is required")
	}

	if c.RedirectURL == "" {
		problems = append(problems, "redirect_uri is required")
	}

	if c.TenantID == "" && c.Authority == "" {
		problems = append(problems, "tenant_id or authority is required")
	}

	if c.ExpiryWindow < MinExpiryWindow {
		problems = append(problems, fmt.Sprintf("expiry window %s is below %s", c.ExpiryWindow, MinExpiryWindow))
	}

	if _, err := ProfileScopes(c.ScopeProfile); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return errors.New("auth: invalid config: " + strings.Join(problems, "; "))
	}

	return nil
}

// endpoint returns the token endpoints. Credentials always travel in the
// request body: oauth2's auto-detection retries a failed exchange with the
// other style, which would redeem a single-use code twice.
func (c *Config) endpoint() oauth2.Endpoint {
	ep := microsoft.AzureADEndpoint(c.TenantID)

	if c.Authority != "" {
		base := strings.TrimRight(c.Authority, "/")
		ep = oauth2.Endpoint{
			AuthURL:  base + "/oauth2/v2.0/authorize",
			TokenURL: base + "/oauth2/v2.0/token",
		}
	}

	ep.AuthStyle = oauth2.AuthStyleInParams

	return ep
}
