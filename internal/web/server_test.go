package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/irdrive/internal/auth"
	"github.com/tonimelisma/irdrive/internal/config"
	"github.com/tonimelisma/irdrive/internal/driveops"
	"github.com/tonimelisma/irdrive/internal/graph/graphtest"
	"github.com/tonimelisma/irdrive/internal/session"
	"github.com/tonimelisma/irdrive/internal/tokenfile"
)

const (
	testRoot     = "Ground Station Operations/Incident Reports"
	testTenant   = "tenant-1"
	testToken    = "at-web"
	testUsername = "ana.reyes@contoso.com"
)

type fixture struct {
	graph   *graphtest.Server
	idp     *httptest.Server
	manager *auth.Manager
	server  *httptest.Server
	cookie  string
}

// newFixture wires a server against a fake Graph drive and a fake identity
// provider whose token endpoint accepts any code.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	g := graphtest.NewServer(t)
	g.Token = testToken
	g.MkdirAll(testRoot)

	idp := httptest.NewServer(http.HandlerFunc(serveToken))
	t.Cleanup(idp.Close)

	cfg := config.DefaultConfig()
	cfg.Auth.ClientID = "client-123"
	cfg.Auth.ClientSecret = "s3cret"
	cfg.Auth.Authority = idp.URL + "/" + testTenant
	cfg.Storage.DriveID = g.DriveID
	cfg.Storage.RootPath = testRoot

	// The callback must come back to this server, so the redirect URI is
	// known only once the listener exists.
	ts := httptest.NewUnstartedServer(nil)
	cfg.Auth.RedirectURI = "http://" + ts.Listener.Addr().String() + "/auth/callback"

	manager, err := auth.NewManager(auth.Config{
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		RedirectURL:  cfg.Auth.RedirectURI,
		Authority:    cfg.Auth.Authority,
		SessionTTL:   cfg.Session.SessionTTL,
	}, session.NewMemoryStore(), idp.Client(), logger)
	require.NoError(t, err)

	drives := driveops.NewSessionProvider(g.URL, g.Client(), g.Client(), "irdrive-test", logger)

	srv, err := NewServer(manager, drives, config.NewHolder(cfg, ""), logger)
	require.NoError(t, err)

	ts.Config.Handler = srv.Handler()
	ts.Start()
	t.Cleanup(ts.Close)

	return &fixture{graph: g, idp: idp, manager: manager, server: ts, cookie: cfg.Server.CookieName}
}

// signedIn seeds an authenticated session holding the token the fake drive
// accepts and returns its ID.
func (f *fixture) signedIn(t *testing.T) string {
	t.Helper()

	cache, err := tokenfile.Encode(&oauth2.Token{
		AccessToken:  testToken,
		RefreshToken: "rt-web",
		Expiry:       time.Now().Add(time.Hour),
	}, map[string]string{
		tokenfile.MetaScopes:   "User.Read Sites.ReadWrite.All",
		tokenfile.MetaUsername: testUsername,
	})
	require.NoError(t, err)

	sess, err := f.manager.Seed(context.Background(), cache)
	require.NoError(t, err)

	return sess.ID
}

func (f *fixture) do(t *testing.T, method, path, sessionID string, body io.Reader, contentType string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), method, f.server.URL+path, body)
	require.NoError(t, err)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: f.cookie, Value: sessionID})
	}

	resp, err := noRedirect(nil).Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func noRedirect(jar http.CookieJar) *http.Client {
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func serveToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/oauth2/v2.0/token") {
		http.NotFound(w, r)
		return
	}

	idToken, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"oid":                "oid-1",
		"tid":                testTenant,
		"preferred_username": testUsername,
		"exp":                time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-key"))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"token_type":    "Bearer",
		"access_token":  testToken,
		"refresh_token": "rt-1",
		"expires_in":    3600,
		"scope":         "User.Read Sites.ReadWrite.All",
		"id_token":      idToken,
	})
}

type statusBody struct {
	SessionID   string `json:"session_id"`
	State       string `json:"state"`
	Username    string `json:"username"`
	SignInRetry bool   `json:"signin_retry"`
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))

	return v
}

func reportForm(t *testing.T, year, location, serial string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("year", year))
	require.NoError(t, mw.WriteField("location", location))
	require.NoError(t, mw.WriteField("serial", serial))

	doc, err := mw.CreateFormFile("file", "report.docx")
	require.NoError(t, err)
	_, err = doc.Write([]byte("docx bytes"))
	require.NoError(t, err)

	att, err := mw.CreateFormFile("attachments", "figure-1.jpg")
	require.NoError(t, err)
	_, err = att.Write([]byte("jpg bytes"))
	require.NoError(t, err)

	require.NoError(t, mw.Close())

	return &buf, mw.FormDataContentType()
}

func TestStatus_NewVisitorGetsSessionCookie(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cookie *http.Cookie

	for _, c := range resp.Cookies() {
		if c.Name == f.cookie {
			cookie = c
		}
	}

	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	st := decode[statusBody](t, resp)
	assert.Equal(t, "anonymous", st.State)
	assert.Equal(t, cookie.Value, st.SessionID)
}

func TestStatus_UnknownCookieGetsFreshSession(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/", "no-such-session", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	st := decode[statusBody](t, resp)
	assert.NotEqual(t, "no-such-session", st.SessionID)
	assert.Equal(t, "anonymous", st.State)
}

func TestSignIn_LoginThenCallback(t *testing.T) {
	f := newFixture(t)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	client := noRedirect(jar)

	resp, err := client.Get(f.server.URL + "/login")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)

	authURL, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(authURL.String(), f.idp.URL+"/"+testTenant+"/oauth2/v2.0/authorize"))

	state := authURL.Query().Get("state")
	require.NotEmpty(t, state)

	resp, err = client.Get(f.server.URL + "/auth/callback?" + url.Values{
		"code":  {"code-1"},
		"state": {state},
	}.Encode())
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp, err = client.Get(f.server.URL + "/")
	require.NoError(t, err)

	defer resp.Body.Close()

	st := decode[statusBody](t, resp)
	assert.Equal(t, "authenticated", st.State)
	assert.Equal(t, testUsername, st.Username)
}

func TestCallback_UnknownStateRedirectsToRetry(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/auth/callback?code=c&state=forged", "", nil, "")

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/?signin=retry", resp.Header.Get("Location"))
}

func TestLogin_RedirectsToCallbackHost(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, f.server.URL+"/login", nil)
	require.NoError(t, err)
	req.Host = "irdrive.invalid:8400"

	resp, err := noRedirect(nil).Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, f.server.URL+"/login", resp.Header.Get("Location"))
	assert.Empty(t, resp.Cookies(), "no session cookie on the wrong host")
}

func TestCallback_WithoutCookieIsRejected(t *testing.T) {
	f := newFixture(t)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	resp, err := noRedirect(jar).Get(f.server.URL + "/login")
	require.NoError(t, err)
	resp.Body.Close()

	authURL, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)

	cb := f.do(t, http.MethodGet, "/auth/callback?"+url.Values{
		"code":  {"code-1"},
		"state": {authURL.Query().Get("state")},
	}.Encode(), "", nil, "")

	require.Equal(t, http.StatusFound, cb.StatusCode)
	assert.Equal(t, "/?signin=retry", cb.Header.Get("Location"))
}

func TestCallback_ProviderErrorRedirectsToRetry(t *testing.T) {
	f := newFixture(t)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	client := noRedirect(jar)

	resp, err := client.Get(f.server.URL + "/login")
	require.NoError(t, err)
	resp.Body.Close()

	authURL, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)

	resp, err = client.Get(f.server.URL + "/auth/callback?" + url.Values{
		"error": {"access_denied"},
		"state": {authURL.Query().Get("state")},
	}.Encode())
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/?signin=retry", resp.Header.Get("Location"))

	resp, err = client.Get(f.server.URL + "/?signin=retry")
	require.NoError(t, err)

	defer resp.Body.Close()

	st := decode[statusBody](t, resp)
	assert.Equal(t, "anonymous", st.State)
	assert.True(t, st.SignInRetry)
}

func TestAPI_RequiresSignIn(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/incidents?year=2025&location=Davao+City", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	anon, err := f.manager.NewSession(context.Background())
	require.NoError(t, err)

	resp = f.do(t, http.MethodGet, "/api/incidents?year=2025&location=Davao+City", anon.ID, nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "sign_in_required", decode[errorBody](t, resp).Error)

	assert.Zero(t, f.graph.Requests(http.MethodGet))
	assert.Zero(t, f.graph.Requests(http.MethodPost))
}

func TestCreateIncident_FilesReport(t *testing.T) {
	f := newFixture(t)
	id := f.signedIn(t)

	body, ct := reportForm(t, "2025", "davao city", "7")

	resp := f.do(t, http.MethodPost, "/api/incidents", id, body, ct)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	type filedBody struct {
		Number string          `json:"number"`
		Folder driveops.Item   `json:"folder"`
		Files  []driveops.Item `json:"files"`
	}

	filed := decode[filedBody](t, resp)
	assert.Equal(t, "SMCOD-IR-GS-DVO-2025-0007", filed.Number)
	require.Len(t, filed.Files, 2)
	assert.Equal(t, "SMCOD-IR-GS-DVO-2025-0007.docx", filed.Files[0].Name)
	assert.Equal(t, "figure-1.jpg", filed.Files[1].Name)

	folderID, ok := f.graph.Lookup(testRoot + "/2025/Davao City/SMCOD-IR-GS-DVO-2025-0007")
	require.True(t, ok)
	assert.Equal(t, folderID, filed.Folder.ID)

	resp = f.do(t, http.MethodGet, "/api/incidents?year=2025&location=Davao+City", id, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	folders := decode[[]driveops.Item](t, resp)
	require.Len(t, folders, 1)
	assert.Equal(t, "SMCOD-IR-GS-DVO-2025-0007", folders[0].Name)
}

func TestCreateIncident_DuplicateConflicts(t *testing.T) {
	f := newFixture(t)
	id := f.signedIn(t)

	body, ct := reportForm(t, "2025", "Davao City", "7")
	resp := f.do(t, http.MethodPost, "/api/incidents", id, body, ct)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	puts := f.graph.Requests(http.MethodPut)

	body, ct = reportForm(t, "2025", "Davao City", "0007")
	resp = f.do(t, http.MethodPost, "/api/incidents", id, body, ct)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, puts, f.graph.Requests(http.MethodPut))
}

func TestCreateIncident_BadInput(t *testing.T) {
	tests := []struct {
		name                   string
		year, location, serial string
	}{
		{name: "serial not numeric", year: "2025", location: "Davao City", serial: "7a"},
		{name: "serial too long", year: "2025", location: "Davao City", serial: "12345"},
		{name: "unknown site", year: "2025", location: "Cebu", serial: "1"},
		{name: "year not a number", year: "twenty", location: "Davao City", serial: "1"},
		{name: "year out of range", year: "1999", location: "Davao City", serial: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := f.signedIn(t)

			body, ct := reportForm(t, tt.year, tt.location, tt.serial)
			resp := f.do(t, http.MethodPost, "/api/incidents", id, body, ct)

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Zero(t, f.graph.Creates())
		})
	}
}

func TestFilesUpdateAndContent(t *testing.T) {
	f := newFixture(t)
	id := f.signedIn(t)

	body, ct := reportForm(t, "2025", "Quezon City", "12")
	resp := f.do(t, http.MethodPost, "/api/incidents", id, body, ct)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	folderID, ok := f.graph.Lookup(testRoot + "/2025/Quezon City/SMCOD-IR-GS-QZN-2025-0012")
	require.True(t, ok)

	resp = f.do(t, http.MethodPut, "/api/incidents/"+folderID+"/files/figure-2.png", id,
		strings.NewReader("png bytes"), "image/png")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	added := decode[driveops.Item](t, resp)
	assert.Equal(t, "figure-2.png", added.Name)

	resp = f.do(t, http.MethodGet, "/api/folders/"+folderID+"/files", id, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	files := decode[[]driveops.Item](t, resp)

	names := make([]string, 0, len(files))
	for _, it := range files {
		names = append(names, it.Name)
	}

	assert.Equal(t, []string{"figure-1.jpg", "figure-2.png", "SMCOD-IR-GS-QZN-2025-0012.docx"}, names)

	resp = f.do(t, http.MethodGet, "/api/items/"+added.ID+"/content", id, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "png bytes", string(data))
}

func TestContent_MissingItemIsNotFound(t *testing.T) {
	f := newFixture(t)
	id := f.signedIn(t)

	resp := f.do(t, http.MethodGet, "/api/items/nope/content", id, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLogout_RevokesAPIAccess(t *testing.T) {
	f := newFixture(t)
	id := f.signedIn(t)

	resp := f.do(t, http.MethodPost, "/logout", id, nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/incidents?year=2025&location=Davao+City", id, nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: auth.ErrReauthRequired, want: http.StatusUnauthorized},
		{err: driveops.ErrRootNotFound, want: http.StatusInternalServerError},
		{err: driveops.ErrNotFound, want: http.StatusNotFound},
		{err: driveops.ErrNotFolder, want: http.StatusConflict},
		{err: driveops.ErrTransport, want: http.StatusBadGateway},
		{err: io.EOF, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
