// Package auth drives the OAuth2 authorization-code flow against Microsoft
// identity and keeps every session's bearer token usable.
//
// A session moves between three states:
//
//	Anonymous --StartSignIn--> FlowPending --HandleCallback--> Authenticated
//
// Any failed callback, failed silent refresh, or Logout returns it to
// Anonymous. Callbacks are correlated to the sign-in that issued them by an
// unguessable state value registered in the store's flow index, so many
// users can sign in concurrently against one process (or several instances
// sharing a store).
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/irdrive/internal/graph"
	"github.com/tonimelisma/irdrive/internal/session"
	"github.com/tonimelisma/irdrive/internal/tokenfile"
)

// stateTokenBytes is the entropy of a state value before encoding.
const stateTokenBytes = 32

// Callback carries the query parameters of a redirect back from the
// authorize endpoint.
type Callback struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Manager owns every session state transition.
type Manager struct {
	cfg           Config
	oauth         oauth2.Config
	defaultScopes []string
	store         session.Store
	httpClient    *http.Client
	logger        *slog.Logger
	locks         *stripedLock

	// nowFunc and stateFunc are replaced in tests.
	nowFunc   func() time.Time
	stateFunc func() (string, error)
}

// NewManager validates cfg and returns a Manager persisting to store.
// httpClient is used for token endpoint calls; nil means http.DefaultClient.
func NewManager(cfg Config, store session.Store, httpClient *http.Client, logger *slog.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	scopes, _ := ProfileScopes(cfg.ScopeProfile) //nolint:errcheck // checked by validate

	return &Manager{
		cfg: cfg,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     cfg.endpoint(),
		},
		defaultScopes: scopes,
		store:         store,
		httpClient:    httpClient,
		logger:        logger,
		locks:         newStripedLock(),
		nowFunc:       time.Now,
		stateFunc:     generateState,
	}, nil
}

// NewSession creates and stores an Anonymous session.
func (m *Manager) NewSession(ctx context.Context) (*session.Session, error) {
	now := m.nowFunc()

	sess := &session.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.cfg.SessionTTL),
	}

	if err := m.store.PutSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("auth: creating session: %w", err)
	}

	m.logger.Debug("session created", slog.String("session", shortID(sess.ID)))

	return sess, nil
}

// Resume returns the session with the given id, or a new Anonymous session
// when id is empty, unknown, or expired. Callers must use the returned ID.
func (m *Manager) Resume(ctx context.Context, id string) (*session.Session, error) {
	if id != "" {
		sess, err := m.load(ctx, id)
		if err == nil {
			return sess, nil
		}

		if !errors.Is(err, session.ErrSessionNotFound) {
			return nil, err
		}
	}

	return m.NewSession(ctx)
}

// StartSignIn registers a new flow for the session and returns the URL the
// user must visit. Any earlier pending flow of the session is discarded, as
// is any credential it held. Empty scopes select the configured profile.
func (m *Manager) StartSignIn(ctx context.Context, sessionID string, scopes []string) (string, error) {
	unlock, err := m.locks.lock(ctx, sessionID)
	if err != nil {
		return "", err
	}
	defer unlock()

	sess, err := m.load(ctx, sessionID)
	if err != nil {
		return "", err
	}

	if sess.PendingState != "" {
		if err := m.store.DeleteFlow(ctx, sess.PendingState); err != nil {
			return "", fmt.Errorf("auth: discarding previous flow: %w", err)
		}
	}

	state, err := m.stateFunc()
	if err != nil {
		return "", fmt.Errorf("auth: generating state token: %w", err)
	}

	now := m.nowFunc()
	requested := m.requestScopes(scopes)
	verifier := oauth2.GenerateVerifier()

	flow := &session.Flow{
		State:        state,
		SessionID:    sess.ID,
		CodeVerifier: verifier,
		Scopes:       requested,
		RedirectURL:  m.cfg.RedirectURL,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.cfg.FlowTTL),
	}

	if err := m.store.PutFlow(ctx, flow); err != nil {
		return "", fmt.Errorf("auth: registering flow: %w", err)
	}

	sess.Clear()
	sess.Scopes = requested
	sess.PendingState = state

	if err := m.save(ctx, sess); err != nil {
		_ = m.store.DeleteFlow(context.WithoutCancel(ctx), state) //nolint:errcheck // reaped later if this fails
		return "", err
	}

	m.logger.Info("sign-in started",
		slog.String("session", shortID(sess.ID)),
		slog.String("state", shortID(state)),
		slog.Time("flow_expires", flow.ExpiresAt),
	)

	cfg := m.oauthFor(flow.Scopes, flow.RedirectURL)

	return cfg.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", m.cfg.Prompt),
	), nil
}

// HandleCallback completes the sign-in identified by cb.State. Every
// failure returns the session to Anonymous and yields an *AuthFlowError,
// except store failures which are returned as-is.
func (m *Manager) HandleCallback(ctx context.Context, sessionID string, cb Callback) error {
	unlock, err := m.locks.lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	flow, reason, err := m.takeFlow(ctx, sessionID, cb.State)
	if err != nil {
		return err
	}

	sess, err := m.load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return &AuthFlowError{Reason: ReasonUnknownState, Err: err}
		}

		return err
	}

	if reason != "" {
		return m.failFlow(ctx, sess, &AuthFlowError{Reason: reason})
	}

	if cb.Error != "" {
		return m.failFlow(ctx, sess, &AuthFlowError{
			Reason:       ReasonProviderError,
			ProviderCode: cb.Error,
			Description:  cb.ErrorDescription,
		})
	}

	if cb.Code == "" {
		return m.failFlow(ctx, sess, &AuthFlowError{Reason: ReasonMissingCode})
	}

	// Authorization codes are single-use: one attempt, never retried.
	tok, err := m.oauthFor(flow.Scopes, flow.RedirectURL).Exchange(m.clientCtx(ctx), cb.Code,
		oauth2.VerifierOption(flow.CodeVerifier),
		oauth2.SetAuthURLParam("scope", strings.Join(flow.Scopes, " ")),
	)
	if err != nil {
		return m.failFlow(ctx, sess, redeemError(err))
	}

	now := m.nowFunc()

	acct, _, err := accountFromToken(tok)
	if err != nil {
		m.logger.Warn("ignoring unreadable id_token", slog.String("error", err.Error()))
	}

	sess.PendingState = ""
	sess.Scopes = flow.Scopes
	sess.Token = sessionToken(tok, flow.Scopes, now)
	sess.AccountID = acct.ID
	sess.Username = acct.Username

	tok.Expiry = sess.Token.ExpiresAt

	sess.ProviderCache, err = encodeCache(tok, acct, flow.Scopes)
	if err != nil {
		return m.failFlow(ctx, sess, &AuthFlowError{Reason: ReasonRedeemFailed, Err: err})
	}

	if err := m.save(ctx, sess); err != nil {
		return err
	}

	m.logger.Info("sign-in completed",
		slog.String("session", shortID(sess.ID)),
		slog.String("account", sess.Username),
		slog.Time("expiry", sess.Token.ExpiresAt),
	)

	return nil
}

// takeFlow removes the flow for state from the index. A non-empty reason
// means the callback cannot be honored; err is reserved for store failures.
func (m *Manager) takeFlow(ctx context.Context, sessionID, state string) (*session.Flow, string, error) {
	if state == "" {
		return nil, ReasonMissingState, nil
	}

	flow, err := m.store.TakeFlow(ctx, state, m.nowFunc())

	switch {
	case errors.Is(err, session.ErrFlowNotFound):
		return nil, ReasonUnknownState, nil
	case errors.Is(err, session.ErrFlowExpired):
		return nil, ReasonExpiredState, nil
	case err != nil:
		return nil, "", fmt.Errorf("auth: taking flow: %w", err)
	}

	if flow.SessionID != sessionID {
		return nil, ReasonForeignState, nil
	}

	return flow, "", nil
}

// failFlow resets the session to Anonymous and returns flowErr.
func (m *Manager) failFlow(ctx context.Context, sess *session.Session, flowErr *AuthFlowError) error {
	ctx = context.WithoutCancel(ctx)

	if sess.PendingState != "" {
		if err := m.store.DeleteFlow(ctx, sess.PendingState); err != nil {
			m.logger.Warn("failed to discard pending flow", slog.String("error", err.Error()))
		}
	}

	sess.Clear()

	if err := m.save(ctx, sess); err != nil {
		m.logger.Warn("failed to reset session after sign-in failure",
			slog.String("session", shortID(sess.ID)),
			slog.String("error", err.Error()),
		)
	}

	m.logger.Warn("sign-in failed",
		slog.String("session", shortID(sess.ID)),
		slog.String("reason", flowErr.Reason),
		slog.String("provider_code", flowErr.ProviderCode),
	)

	return flowErr
}

func redeemError(err error) *AuthFlowError {
	flowErr := &AuthFlowError{Reason: ReasonRedeemFailed, Err: err}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		flowErr.ProviderCode = re.ErrorCode
		flowErr.Description = re.ErrorDescription
	}

	return flowErr
}

// ValidToken returns a bearer token with at least the expiry window left.
// A usable stored token is returned without contacting the provider.
// Otherwise the session is refreshed silently; if that fails the session
// becomes Anonymous and ErrReauthRequired is returned.
func (m *Manager) ValidToken(ctx context.Context, sessionID string) (string, error) {
	sess, err := m.load(ctx, sessionID)
	if err != nil {
		return "", m.reauthIfMissing(err)
	}

	if sess.Token.Usable(m.nowFunc(), m.cfg.ExpiryWindow) {
		return sess.Token.AccessToken, nil
	}

	unlock, err := m.locks.lock(ctx, sessionID)
	if err != nil {
		return "", err
	}
	defer unlock()

	// Reload under the lock: a concurrent caller may have refreshed or
	// logged out while this one waited.
	sess, err = m.load(ctx, sessionID)
	if err != nil {
		return "", m.reauthIfMissing(err)
	}

	if sess.State() != session.Authenticated {
		return "", ErrReauthRequired
	}

	if sess.Token.Usable(m.nowFunc(), m.cfg.ExpiryWindow) {
		return sess.Token.AccessToken, nil
	}

	return m.refresh(ctx, sess)
}

func (m *Manager) reauthIfMissing(err error) error {
	if errors.Is(err, session.ErrSessionNotFound) {
		return ErrReauthRequired
	}

	return err
}

// refresh redeems the provider cache for a new token. Callers hold the
// session lock.
func (m *Manager) refresh(ctx context.Context, sess *session.Session) (string, error) {
	prev, _, err := decodeCache(sess.ProviderCache)
	if err != nil || prev.RefreshToken == "" {
		return "", m.expire(ctx, sess, "no refresh token")
	}

	m.logger.Debug("refreshing token",
		slog.String("session", shortID(sess.ID)),
		slog.Time("expiry", sess.Token.ExpiresAt),
	)

	src := m.oauthFor(sess.Scopes, m.cfg.RedirectURL).TokenSource(m.clientCtx(ctx), &oauth2.Token{
		RefreshToken: prev.RefreshToken,
	})

	tok, err := src.Token()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("auth: refreshing token: %w", ctx.Err())
		}

		return "", m.expire(ctx, sess, "refresh rejected: "+err.Error())
	}

	acct, ok, err := accountFromToken(tok)
	if err != nil {
		m.logger.Warn("ignoring unreadable id_token", slog.String("error", err.Error()))
	}

	switch {
	case !ok:
		acct = account{ID: sess.AccountID, Username: sess.Username}
	case sess.AccountID != "" && acct.ID != sess.AccountID:
		return "", m.expire(ctx, sess, "refreshed token belongs to another account")
	}

	sess.Token = sessionToken(tok, sess.Scopes, m.nowFunc())
	sess.AccountID = acct.ID
	sess.Username = acct.Username

	tok.Expiry = sess.Token.ExpiresAt

	sess.ProviderCache, err = encodeCache(tok, acct, sess.Scopes)
	if err != nil {
		return "", m.expire(ctx, sess, err.Error())
	}

	if err := m.save(ctx, sess); err != nil {
		return "", err
	}

	m.logger.Info("token refreshed",
		slog.String("session", shortID(sess.ID)),
		slog.Time("expiry", sess.Token.ExpiresAt),
	)

	return sess.Token.AccessToken, nil
}

// expire drops the session's credential after an unrecoverable token
// failure.
func (m *Manager) expire(ctx context.Context, sess *session.Session, reason string) error {
	sess.Clear()

	if err := m.save(context.WithoutCancel(ctx), sess); err != nil {
		return err
	}

	m.logger.Warn("session requires sign-in",
		slog.String("session", shortID(sess.ID)),
		slog.String("reason", reason),
	)

	return ErrReauthRequired
}

// Logout returns the session to Anonymous from any state. An unknown
// session is already logged out.
func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	unlock, err := m.locks.lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	sess, err := m.load(ctx, sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		return nil
	}

	if err != nil {
		return err
	}

	if sess.PendingState != "" {
		if err := m.store.DeleteFlow(ctx, sess.PendingState); err != nil {
			return fmt.Errorf("auth: discarding pending flow: %w", err)
		}
	}

	sess.Clear()

	if err := m.save(ctx, sess); err != nil {
		return err
	}

	m.logger.Info("logged out", slog.String("session", shortID(sessionID)))

	return nil
}

// TokenSource binds ValidToken to one session for the Graph client.
func (m *Manager) TokenSource(sessionID string) graph.TokenSource {
	return graph.TokenFunc(func(ctx context.Context) (string, error) {
		return m.ValidToken(ctx, sessionID)
	})
}

// load reads a live session. Expired sessions are deleted and reported as
// not found.
func (m *Manager) load(ctx context.Context, id string) (*session.Session, error) {
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, err
		}

		return nil, fmt.Errorf("auth: loading session: %w", err)
	}

	if sess.Expired(m.nowFunc()) {
		if err := m.store.DeleteSession(ctx, id); err != nil {
			m.logger.Warn("failed to delete expired session", slog.String("error", err.Error()))
		}

		return nil, session.ErrSessionNotFound
	}

	return sess, nil
}

func (m *Manager) save(ctx context.Context, sess *session.Session) error {
	sess.UpdatedAt = m.nowFunc()

	if err := m.store.PutSession(ctx, sess); err != nil {
		return fmt.Errorf("auth: saving session: %w", err)
	}

	return nil
}

// oauthFor returns a copy of the client config for one flow.
func (m *Manager) oauthFor(scopes []string, redirectURL string) *oauth2.Config {
	cfg := m.oauth
	cfg.Scopes = scopes
	cfg.RedirectURL = redirectURL

	return &cfg
}

func (m *Manager) clientCtx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// generateState produces an unguessable base64url state value.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// shortID trims identifiers for logs so full states never appear there.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}

	return id
}

func encodeCache(tok *oauth2.Token, acct account, scopes []string) ([]byte, error) {
	meta := map[string]string{
		tokenfile.MetaScopes: strings.Join(scopes, " "),
	}

	if acct.ID != "" {
		meta[tokenfile.MetaAccountID] = acct.ID
	}

	if acct.Username != "" {
		meta[tokenfile.MetaUsername] = acct.Username
	}

	return tokenfile.Encode(&oauth2.Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, meta)
}

func decodeCache(data []byte) (*oauth2.Token, map[string]string, error) {
	if len(data) == 0 {
		return nil, nil, errors.New("auth: empty provider cache")
	}

	return tokenfile.Decode(data)
}
