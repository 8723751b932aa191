package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMe_FallsBackToUPN(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me", r.URL.Path)
		fmt.Fprint(w, `{"id":"u1","displayName":"Ana Reyes","mail":"","userPrincipalName":"ana@contoso.com"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	user, err := client.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ana Reyes", user.DisplayName)
	assert.Equal(t, "ana@contoso.com", user.Email)
}

func TestSitePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://contoso.sharepoint.com/sites/SMCOD", "/sites/contoso.sharepoint.com:/sites/SMCOD"},
		{"https://contoso.sharepoint.com/sites/SMCOD/", "/sites/contoso.sharepoint.com:/sites/SMCOD"},
		{"https://contoso.sharepoint.com", "/sites/contoso.sharepoint.com"},
		{"https://contoso.sharepoint.com/sites/Ground Ops", "/sites/contoso.sharepoint.com:/sites/Ground%20Ops"},
	}

	for _, tt := range tests {
		got, err := sitePath(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := sitePath("not a url")
	assert.Error(t, err)
}

func TestSiteByURLAndSiteDrive(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sites/contoso.sharepoint.com:/sites/SMCOD", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id":"contoso.sharepoint.com,abc,def","name":"SMCOD","displayName":"SMCOD Operations","webUrl":"https://contoso.sharepoint.com/sites/SMCOD"}`)
	})
	mux.HandleFunc("GET /sites/{id}/drive", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "contoso.sharepoint.com,abc,def", r.PathValue("id"))
		fmt.Fprint(w, `{"id":"b!drive","name":"Documents","driveType":"documentLibrary","owner":{"group":{"displayName":"SMCOD"}}}`)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	site, err := client.SiteByURL(context.Background(), "https://contoso.sharepoint.com/sites/SMCOD")
	require.NoError(t, err)
	assert.Equal(t, "SMCOD Operations", site.DisplayName)

	drive, err := client.SiteDrive(context.Background(), site.ID)
	require.NoError(t, err)
	assert.Equal(t, "b!drive", drive.ID)
	assert.Equal(t, "documentLibrary", drive.DriveType)
	assert.Equal(t, "SMCOD", drive.OwnerName)
}

func TestMyDrive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/drive", r.URL.Path)
		fmt.Fprint(w, `{"id":"personal","driveType":"business","owner":{"user":{"displayName":"Ana"}}}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	drive, err := client.MyDrive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "personal", drive.ID)
	assert.Equal(t, "Ana", drive.OwnerName)
}
