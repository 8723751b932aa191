package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/irdrive/internal/session"
)

const (
	testClientID     = "client-123"
	testClientSecret = "s3cret"
	testTenant       = "tenant-1"
	testOID          = "oid-1"
	testUsername     = "ana.reyes@contoso.com"
)

// mockProvider is an httptest identity provider implementing the authorize
// redirect and the token endpoint for the code and refresh grants.
type mockProvider struct {
	*httptest.Server

	mu           sync.Mutex
	codes        map[string]string // code -> PKCE challenge ("" = not checked)
	redeemed     map[string]bool
	refreshToks  map[string]bool
	exchanges    int
	refreshes    int
	failRefresh  bool
	refreshOID   string
	expiresIn    int
	omitIDToken  bool
	lastScope    string
	refreshDelay chan struct{}
	refreshSeen  chan struct{} // receives once per refresh request, if set
	seq          int
}

func newMockProvider(t *testing.T) *mockProvider {
	t.Helper()

	p := &mockProvider{
		codes:       make(map[string]string),
		redeemed:    make(map[string]bool),
		refreshToks: make(map[string]bool),
		expiresIn:   3600,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /"+testTenant+"/oauth2/v2.0/authorize", p.serveAuthorize)
	mux.HandleFunc("POST /"+testTenant+"/oauth2/v2.0/token", p.serveToken)

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)

	return p
}

func (p *mockProvider) authority() string {
	return p.URL + "/" + testTenant
}

// issueCode mints a code as if the user consented.
func (p *mockProvider) issueCode() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	code := fmt.Sprintf("code-%d", p.seq)
	p.codes[code] = ""

	return code
}

func (p *mockProvider) counts() (exchanges, refreshes int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.exchanges, p.refreshes
}

func (p *mockProvider) set(fn func(p *mockProvider)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fn(p)
}

func (p *mockProvider) serveAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	p.mu.Lock()
	p.seq++
	code := fmt.Sprintf("code-%d", p.seq)
	p.codes[code] = q.Get("code_challenge")
	p.mu.Unlock()

	target, _ := url.Parse(q.Get("redirect_uri"))
	rq := target.Query()
	rq.Set("code", code)
	rq.Set("state", q.Get("state"))
	target.RawQuery = rq.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (p *mockProvider) serveToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		tokenError(w, "invalid_request", err.Error())
		return
	}

	if r.PostForm.Get("client_id") != testClientID || r.PostForm.Get("client_secret") != testClientSecret {
		tokenError(w, "invalid_client", "bad client credentials")
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		p.redeem(w, r.PostForm)
	case "refresh_token":
		p.refresh(w, r)
	default:
		tokenError(w, "unsupported_grant_type", r.PostForm.Get("grant_type"))
	}
}

func (p *mockProvider) redeem(w http.ResponseWriter, form url.Values) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.exchanges++
	p.lastScope = form.Get("scope")

	code := form.Get("code")

	challenge, ok := p.codes[code]
	if !ok || p.redeemed[code] {
		tokenError(w, "invalid_grant", "AADSTS54005: OAuth2 Authorization code was already redeemed.")
		return
	}

	p.redeemed[code] = true

	verifier := form.Get("code_verifier")
	if verifier == "" {
		tokenError(w, "invalid_grant", "missing code_verifier")
		return
	}

	if challenge != "" {
		sum := sha256.Sum256([]byte(verifier))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != challenge {
			tokenError(w, "invalid_grant", "PKCE verification failed")
			return
		}
	}

	p.writeToken(w, testOID)
}

func (p *mockProvider) refresh(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	delay, seen := p.refreshDelay, p.refreshSeen
	p.mu.Unlock()

	if seen != nil {
		seen <- struct{}{}
	}

	if delay != nil {
		select {
		case <-delay:
		case <-r.Context().Done():
			return
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.refreshes++

	if p.failRefresh || !p.refreshToks[r.PostForm.Get("refresh_token")] {
		tokenError(w, "invalid_grant", "AADSTS700082: The refresh token has expired.")
		return
	}

	oid := testOID
	if p.refreshOID != "" {
		oid = p.refreshOID
	}

	p.writeToken(w, oid)
}

// writeToken must be called with p.mu held.
func (p *mockProvider) writeToken(w http.ResponseWriter, oid string) {
	p.seq++
	refresh := fmt.Sprintf("rt-%d", p.seq)
	p.refreshToks[refresh] = true

	body := map[string]any{
		"token_type":    "Bearer",
		"access_token":  fmt.Sprintf("at-%d", p.seq),
		"refresh_token": refresh,
		"scope":         "User.Read Sites.ReadWrite.All",
	}

	if p.expiresIn > 0 {
		body["expires_in"] = p.expiresIn
	}

	if !p.omitIDToken {
		body["id_token"] = signIDToken(oid)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func tokenError(w http.ResponseWriter, code, desc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "error_description": desc})
}

func signIDToken(oid string) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"oid":                oid,
		"tid":                testTenant,
		"sub":                "subject-" + oid,
		"preferred_username": testUsername,
		"exp":                time.Now().Add(time.Hour).Unix(),
	})

	s, err := tok.SignedString([]byte("test-key"))
	if err != nil {
		panic(err)
	}

	return s
}

// fakeClock is a settable clock starting at the real current time, so that
// expiries computed by the oauth2 library line up with the manager's view.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func testConfig(p *mockProvider) Config {
	return Config{
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		RedirectURL:  "http://localhost:8400/auth/callback",
		Authority:    p.authority(),
	}
}

func newTestManager(t *testing.T, p *mockProvider) (*Manager, *session.MemoryStore, *fakeClock) {
	t.Helper()

	store := session.NewMemoryStore()

	return newTestManagerWithConfig(t, testConfig(p), store)
}

func newTestManagerWithConfig(t *testing.T, cfg Config, store *session.MemoryStore) (*Manager, *session.MemoryStore, *fakeClock) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	m, err := NewManager(cfg, store, nil, logger)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Now()}
	m.nowFunc = clock.Now

	return m, store, clock
}

// stateOf returns the state parameter of an authorize URL.
func stateOf(t *testing.T, authURL string) string {
	t.Helper()

	u, err := url.Parse(authURL)
	require.NoError(t, err)

	state := u.Query().Get("state")
	require.NotEmpty(t, state)

	return state
}

func TestMockProvider_RejectsBadClient(t *testing.T) {
	p := newMockProvider(t)

	resp, err := http.PostForm(p.authority()+"/oauth2/v2.0/token", url.Values{
		"grant_type": {"authorization_code"},
		"client_id":  {"someone-else"},
	})
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
