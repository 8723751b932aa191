package graph

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errWriteFailed = errors.New("write failed")

// errorWriter is an io.Writer that always returns an error.
type errorWriter struct{}

func (errorWriter) Write(_ []byte) (int, error) {
	return 0, errWriteFailed
}

func TestDownload_FollowsRedirect(t *testing.T) {
	fileContent := "incident report payload"

	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(fileContent))
	}))
	defer cdn.Close()

	graphSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/drives/d/items/item-1/content", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		http.Redirect(w, r, cdn.URL+"/dl?token=secret", http.StatusFound)
	}))
	defer graphSrv.Close()

	client := newTestClient(t, graphSrv.URL)

	var buf bytes.Buffer

	n, err := client.Download(context.Background(), "d", "item-1", &buf)
	require.NoError(t, err)
	assert.Equal(t, fileContent, buf.String())
	assert.Equal(t, int64(len(fileContent)), n)
}

func TestDownload_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	_, err := client.Download(context.Background(), "d", "missing", &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDownload_WriterError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("data"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	_, err := client.Download(context.Background(), "d", "item", errorWriter{})
	require.ErrorIs(t, err, ErrDownloadInterrupted)
	assert.ErrorIs(t, err, errWriteFailed)
}
