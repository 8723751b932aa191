package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/irdrive/internal/session"
	"github.com/tonimelisma/irdrive/internal/tokenfile"
)

// Status is a display snapshot of a session. It never carries a token.
type Status struct {
	SessionID string        `json:"session_id"`
	State     session.State `json:"state"`
	AccountID string        `json:"account_id,omitempty"`
	Username  string        `json:"username,omitempty"`
	Scopes    []string      `json:"scopes,omitempty"`
	ExpiresAt time.Time     `json:"expires_at,omitzero"`
}

// Status reports the session's state. An unknown session reports as
// Anonymous.
func (m *Manager) Status(ctx context.Context, sessionID string) (Status, error) {
	st := Status{SessionID: sessionID, State: session.Anonymous}

	sess, err := m.load(ctx, sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		return st, nil
	}

	if err != nil {
		return Status{}, err
	}

	st.State = sess.State()
	st.AccountID = sess.AccountID
	st.Username = sess.Username
	st.Scopes = slices.Clone(sess.Scopes)

	if sess.Token != nil {
		st.ExpiresAt = sess.Token.ExpiresAt
	}

	return st, nil
}

// Reap removes expired flows and sessions from the store.
func (m *Manager) Reap(ctx context.Context) (int, error) {
	n, err := m.store.Reap(ctx, m.nowFunc())
	if err != nil {
		return 0, fmt.Errorf("auth: reaping: %w", err)
	}

	return n, nil
}

// RunReaper calls Reap every interval until ctx is canceled.
func (m *Manager) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Debug("reaper started", slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Reap(ctx)
			if err != nil {
				m.logger.Warn("reap failed", slog.String("error", err.Error()))
				continue
			}

			if n > 0 {
				m.logger.Info("reaped expired sign-in state", slog.Int("removed", n))
			}
		}
	}
}

// Seed creates an Authenticated session from a provider cache previously
// returned by Snapshot, as stored in a token file. The session's token is
// refreshed on first use if it is no longer usable.
func (m *Manager) Seed(ctx context.Context, cache []byte) (*session.Session, error) {
	tok, meta, err := decodeCache(cache)
	if err != nil {
		return nil, fmt.Errorf("auth: reading provider cache: %w", err)
	}

	sess, err := m.NewSession(ctx)
	if err != nil {
		return nil, err
	}

	scopes := strings.Fields(meta[tokenfile.MetaScopes])

	sess.Scopes = scopes
	sess.AccountID = meta[tokenfile.MetaAccountID]
	sess.Username = meta[tokenfile.MetaUsername]
	sess.ProviderCache = slices.Clone(cache)
	sess.Token = seededToken(tok, scopes, m.nowFunc())

	if err := m.save(ctx, sess); err != nil {
		return nil, err
	}

	return sess, nil
}

// seededToken uses the cached expiry. A cache without one gets an expiry
// of now, so the first ValidToken refreshes.
func seededToken(tok *oauth2.Token, scopes []string, now time.Time) *session.Token {
	expires := tok.Expiry
	if expires.IsZero() {
		expires = now
	}

	return &session.Token{
		AccessToken: tok.AccessToken,
		ExpiresAt:   expires,
		Scopes:      scopes,
	}
}

// Snapshot returns the session's provider cache for persisting. Only
// Authenticated sessions have one.
func (m *Manager) Snapshot(ctx context.Context, sessionID string) ([]byte, error) {
	sess, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, m.reauthIfMissing(err)
	}

	if sess.State() != session.Authenticated || len(sess.ProviderCache) == 0 {
		return nil, ErrReauthRequired
	}

	return slices.Clone(sess.ProviderCache), nil
}
