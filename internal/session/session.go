// Package session holds per-user authentication state and the process-wide
// flow index that correlates OAuth2 callbacks with the sign-in attempt that
// issued them. It is a pure data layer: the auth package owns every state
// transition, and Store implementations only persist what they are given.
package session

import (
	"fmt"
	"slices"
	"time"
)

// State is the derived authentication state of a Session.
type State int

// Session states. The zero value is Anonymous.
const (
	Anonymous State = iota
	FlowPending
	Authenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case FlowPending:
		return "flow_pending"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Anonymous, FlowPending, Authenticated} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}

	return fmt.Errorf("session: unknown state %q", text)
}

// Token is the bearer credential handed to callers. ExpiresAt is always
// populated; the auth package computes it at receipt time when the provider
// omits an absolute expiry.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Scopes      []string  `json:"scopes,omitempty"`
}

// Usable reports whether the token may be handed to a caller at now. A token
// with less than window remaining is not usable and must be refreshed.
func (t *Token) Usable(now time.Time, window time.Duration) bool {
	if t == nil || t.AccessToken == "" || t.ExpiresAt.IsZero() {
		return false
	}

	return t.ExpiresAt.Sub(now) >= window
}

// Session is the user-scoped state bag keyed by an opaque session ID.
type Session struct {
	ID     string   `json:"id"`
	Scopes []string `json:"scopes,omitempty"`
	Token  *Token   `json:"token,omitempty"`

	// PendingState is the state value of the live sign-in flow, if any.
	PendingState string `json:"pending_state,omitempty"`

	// AccountID identifies the signed-in account (oid.tid) so a silent
	// refresh can be checked against the account that consented.
	AccountID string `json:"account_id,omitempty"`
	Username  string `json:"username,omitempty"`

	// ProviderCache is the serialized refresh artifact (tokenfile format).
	ProviderCache []byte `json:"provider_cache,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// State derives the session's authentication state.
func (s *Session) State() State {
	switch {
	case s == nil:
		return Anonymous
	case s.Token != nil:
		return Authenticated
	case s.PendingState != "":
		return FlowPending
	default:
		return Anonymous
	}
}

// Expired reports whether the session outlived its TTL. A zero ExpiresAt
// never expires.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Clear drops every credential and pending flow reference, leaving an
// Anonymous session with the same ID.
func (s *Session) Clear() {
	s.Scopes = nil
	s.Token = nil
	s.PendingState = ""
	s.AccountID = ""
	s.Username = ""
	s.ProviderCache = nil
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	c := *s
	c.Scopes = slices.Clone(s.Scopes)
	c.ProviderCache = slices.Clone(s.ProviderCache)

	if s.Token != nil {
		tok := *s.Token
		tok.Scopes = slices.Clone(s.Token.Scopes)
		c.Token = &tok
	}

	return &c
}

// Flow is a single in-flight authorization attempt, registered in the flow
// index under its State until it is redeemed, discarded, or reaped.
type Flow struct {
	State        string    `json:"state"`
	SessionID    string    `json:"session_id"`
	CodeVerifier string    `json:"code_verifier"`
	Scopes       []string  `json:"scopes"`
	RedirectURL  string    `json:"redirect_url"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the flow can no longer be redeemed at now.
func (f *Flow) Expired(now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}

// Clone returns a deep copy of the flow.
func (f *Flow) Clone() *Flow {
	if f == nil {
		return nil
	}

	c := *f
	c.Scopes = slices.Clone(f.Scopes)

	return &c
}

// NormalizeScopes merges scope lists into one ordered list without
// duplicates or empty entries. First occurrence wins.
func NormalizeScopes(lists ...[]string) []string {
	seen := make(map[string]bool)

	var out []string

	for _, list := range lists {
		for _, s := range list {
			if s == "" || seen[s] {
				continue
			}

			seen[s] = true
			out = append(out, s)
		}
	}

	return out
}
