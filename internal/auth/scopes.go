package auth

import (
	"fmt"

	"github.com/tonimelisma/irdrive/internal/session"
)

// Scope profiles selectable in configuration.
const (
	ProfileReadOnly  = "read_only"
	ProfileReadWrite = "read_write"
)

// baseScopes are requested on every sign-in: offline_access yields the
// refresh token, openid and profile yield the id_token with the account.
var baseScopes = []string{"offline_access", "openid", "profile"}

var profiles = map[string][]string{
	ProfileReadOnly:  {"User.Read", "Sites.Read.All"},
	ProfileReadWrite: {"User.Read", "Sites.ReadWrite.All"},
}

// ProfileScopes returns the Graph scopes of a named profile.
func ProfileScopes(name string) ([]string, error) {
	scopes, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("auth: unknown scope profile %q (want %q or %q)", name, ProfileReadOnly, ProfileReadWrite)
	}

	return append([]string(nil), scopes...), nil
}

// requestScopes resolves what a sign-in asks for. Empty scopes fall back to
// the default profile.
func (m *Manager) requestScopes(scopes []string) []string {
	if len(scopes) == 0 {
		scopes = m.defaultScopes
	}

	return session.NormalizeScopes(scopes, baseScopes)
}
