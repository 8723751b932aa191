package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth.TenantID = "contoso"
	cfg.Auth.ClientSecret = "do-not-print"
	cfg.Storage.SiteURL = "https://contoso.sharepoint.com/sites/SMCOD"
	cfg.Session.Backend = BackendRedis
	cfg.Session.RedisURL = "redis://:pw@cache:6379/0"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, "/etc/irdrive/config.toml", &buf))

	out := buf.String()
	assert.Contains(t, out, "# Effective configuration (file: /etc/irdrive/config.toml)")
	assert.Contains(t, out, `tenant_id     = "contoso"`)
	assert.Contains(t, out, `site_url           = "https://contoso.sharepoint.com/sites/SMCOD"`)
	assert.Contains(t, out, `"Davao City" = "DVO"`)
	assert.Contains(t, out, `expiry_window = "2m0s"`)
	assert.Contains(t, out, "redis_url")
	assert.NotContains(t, out, "do-not-print")
	assert.NotContains(t, out, ":pw@")
	assert.NotContains(t, out, "sqlite_path")
}

func TestRenderEffective_NoFile(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderEffective(DefaultConfig(), "", &buf))
	assert.Contains(t, buf.String(), "(file: none)")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestRenderEffective_WriteError(t *testing.T) {
	err := RenderEffective(DefaultConfig(), "", failingWriter{})
	assert.EqualError(t, err, "disk full")
}
