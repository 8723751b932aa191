//go:build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/irdrive/testutil"
)

// realHomeDir is HOME before TestMain overrides it.
var realHomeDir string

// testDataDir is the isolated data directory holding the token file.
var testDataDir string

// appEnvVars could point the binary at production config or credentials.
var appEnvVars = []string{
	"IRDRIVE_CONFIG",
	"IRDRIVE_CLIENT_SECRET",
	"IRDRIVE_DRIVE_ID",
	"IRDRIVE_SITE_URL",
	"IRDRIVE_REDIS_URL",
}

// validateTestData checks .testdata/ before any test runs. E2E tests can't
// import internal packages, so the token file is checked with stdlib JSON.
func validateTestData(credDir string) {
	tokenPath := filepath.Join(credDir, "token.json")

	data, err := os.ReadFile(tokenPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: cannot read token file %s: %v\n", tokenPath, err)
		os.Exit(1)
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(data, &parsed); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: token file %s is not valid JSON: %v\n", tokenPath, err)
		os.Exit(1)
	}

	if _, ok := parsed["token"]; !ok {
		fmt.Fprintf(os.Stderr, "FATAL: token file %s missing \"token\" key\n", tokenPath)
		os.Exit(1)
	}

	if _, err := os.Stat(filepath.Join(credDir, "config.toml")); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config.toml not found in %s\n", credDir)
		os.Exit(1)
	}
}

// setupIsolation points HOME and the XDG directories at a temp root and
// copies the test config and token there. The returned cleanup copies a
// rotated token back to .testdata/ and removes the temp root.
func setupIsolation(moduleRoot string) func() {
	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: cannot determine home dir: %v\n", err)
		os.Exit(1)
	}

	realHomeDir = home
	credDir := testutil.FindTestCredentialDir(moduleRoot)
	validateTestData(credDir)

	for _, v := range appEnvVars {
		os.Unsetenv(v)
	}

	tempRoot, err := os.MkdirTemp("", "irdrive-e2e-isolation-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: creating isolation temp dir: %v\n", err)
		os.Exit(1)
	}

	tempHome := filepath.Join(tempRoot, "home")
	tempConfig := filepath.Join(tempRoot, "config")
	tempData := filepath.Join(tempRoot, "data")

	os.Setenv("HOME", tempHome)
	os.Setenv("XDG_CONFIG_HOME", tempConfig)
	os.Setenv("XDG_DATA_HOME", tempData)

	appConfigDir := filepath.Join(tempConfig, "irdrive")
	testDataDir = filepath.Join(tempData, "irdrive")

	for _, d := range []string{tempHome, appConfigDir, testDataDir} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: creating dir %s: %v\n", d, err)
			os.Exit(1)
		}
	}

	testutil.CopyFile(filepath.Join(credDir, "token.json"), filepath.Join(testDataDir, "token.json"), 0o600)
	testutil.CopyFile(filepath.Join(credDir, "config.toml"), filepath.Join(appConfigDir, "config.toml"), 0o600)

	verifyIsolation(tempRoot)

	fmt.Fprintf(os.Stderr, "E2E isolation: HOME=%s XDG_DATA_HOME=%s target=%s\n", tempHome, tempData, target)

	return func() {
		// Refreshes rotate the token; keep the newest one for the next run.
		data, err := os.ReadFile(filepath.Join(testDataDir, "token.json"))
		if err == nil {
			if err := os.WriteFile(filepath.Join(credDir, "token.json"), data, 0o600); err != nil {
				fmt.Fprintf(os.Stderr, "WARNING: cannot write rotated token back: %v\n", err)
			}
		}

		os.RemoveAll(tempRoot)
	}
}

// verifyIsolation exits before any test runs if a production path could
// leak into the binary's environment.
func verifyIsolation(tempRoot string) {
	crash := func(msg string) {
		fmt.Fprintf(os.Stderr, "FATAL: isolation check failed: %s\n", msg)
		os.Exit(1)
	}

	for _, v := range appEnvVars {
		if os.Getenv(v) != "" {
			crash(v + " is set")
		}
	}

	for _, v := range []string{"HOME", "XDG_DATA_HOME", "XDG_CONFIG_HOME"} {
		if !strings.HasPrefix(os.Getenv(v), tempRoot) {
			crash(v + " not overridden to temp dir")
		}
	}

	if home, _ := os.UserHomeDir(); !strings.HasPrefix(home, tempRoot) {
		crash("UserHomeDir() returns " + home + " (not under temp)")
	}
}

func TestIsolation_HomeOverridden(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.NotEqual(t, realHomeDir, home)
}

func TestIsolation_TokenInTempDir(t *testing.T) {
	assert.NotContains(t, testDataDir, realHomeDir)

	_, err := os.Stat(filepath.Join(testDataDir, "token.json"))
	assert.NoError(t, err)
}

// TestIsolation_BinaryResolvesTemp checks that the binary reads its config
// from the isolated directory.
func TestIsolation_BinaryResolvesTemp(t *testing.T) {
	stdout, stderr := runCLI(t, "config", "show")

	assert.Contains(t, stdout, filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "irdrive", "config.toml"))
	assert.NotContains(t, stdout, realHomeDir)
	assert.NotContains(t, stderr, realHomeDir)
}
