//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/irdrive/testutil"
)

// targetEnv names the drive ID or site URL under test. It must match the
// [storage] section of .testdata/config.toml and be allowlisted.
const targetEnv = "IRDRIVE_E2E_TARGET"

var (
	binaryPath string
	target     string
)

func TestMain(m *testing.M) {
	moduleRoot := testutil.FindModuleRoot("..")
	testutil.LoadDotEnv(filepath.Join(moduleRoot, ".env"))
	target = testutil.ValidateAllowlist(targetEnv)

	tmpDir, err := os.MkdirTemp("", "irdrive-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp dir: %v\n", err)
		os.Exit(1)
	}

	binaryPath = filepath.Join(tmpDir, "irdrive")

	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Dir = moduleRoot
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "building binary: %v\n", err)
		os.RemoveAll(tmpDir)
		os.Exit(1)
	}

	cleanup := setupIsolation(moduleRoot)
	code := m.Run()

	cleanup()
	os.RemoveAll(tmpDir)
	os.Exit(code)
}

// runCLI runs the binary and fails the test on a non-zero exit.
func runCLI(t *testing.T, args ...string) (string, string) {
	t.Helper()

	stdout, stderr, err := runCLIErr(args...)
	if err != nil {
		t.Fatalf("irdrive %v failed: %v\nstdout: %s\nstderr: %s", args, err, stdout, stderr)
	}

	return stdout, stderr
}

func runCLIErr(args ...string) (string, string, error) {
	cmd := exec.Command(binaryPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	return stdout.String(), stderr.String(), err
}

// runJSON runs the binary with --json and decodes stdout into v.
func runJSON(t *testing.T, v any, args ...string) {
	t.Helper()

	stdout, _ := runCLI(t, append([]string{"--json"}, args...)...)
	require.NoError(t, json.Unmarshal([]byte(stdout), v), stdout)
}

type item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
	Size int64  `json:"size"`
}

// scratchFolder returns a unique top-level segment for one test. The
// binary has no delete command; point the config root at a scratch
// library folder and empty it periodically.
func scratchFolder(prefix string) string {
	return fmt.Sprintf("e2e-%s-%d", prefix, time.Now().UnixNano())
}

func TestE2E_RoundTrip(t *testing.T) {
	folder := scratchFolder("roundtrip")
	content := []byte("Hello from the irdrive E2E test!\n")

	var created item

	t.Run("whoami", func(t *testing.T) {
		var out struct {
			User struct {
				ID string `json:"id"`
			} `json:"user"`
			DriveID string `json:"drive_id"`
		}

		runJSON(t, &out, "whoami")
		assert.NotEmpty(t, out.User.ID)
		assert.NotEmpty(t, out.DriveID)
	})

	t.Run("mkdir", func(t *testing.T) {
		runJSON(t, &created, "mkdir", folder, "sub")
		assert.Equal(t, "sub", created.Name)
	})

	t.Run("mkdir_again_reuses", func(t *testing.T) {
		var again item
		runJSON(t, &again, "mkdir", folder, "sub")
		assert.Equal(t, created.ID, again.ID)
	})

	t.Run("check", func(t *testing.T) {
		var out struct {
			Exists bool `json:"exists"`
		}

		runJSON(t, &out, "check", folder, "sub")
		assert.True(t, out.Exists)

		runJSON(t, &out, "check", folder, "nothing-here")
		assert.False(t, out.Exists)
	})

	var uploaded item

	t.Run("put", func(t *testing.T) {
		local := filepath.Join(t.TempDir(), "test.txt")
		require.NoError(t, os.WriteFile(local, content, 0o600))

		runJSON(t, &uploaded, "put", local, folder, "sub")
		assert.Equal(t, "test.txt", uploaded.Name)
		assert.Equal(t, int64(len(content)), uploaded.Size)
	})

	t.Run("ls", func(t *testing.T) {
		var out struct {
			Files []item `json:"files"`
		}

		runJSON(t, &out, "ls", folder, "sub")
		require.Len(t, out.Files, 1)
		assert.Equal(t, uploaded.ID, out.Files[0].ID)
	})

	t.Run("get", func(t *testing.T) {
		local := filepath.Join(t.TempDir(), "downloaded.txt")
		runCLI(t, "get", uploaded.ID, local)

		data, err := os.ReadFile(local)
		require.NoError(t, err)
		assert.Equal(t, content, data)
	})

	t.Run("get_folder_fails", func(t *testing.T) {
		_, stderr, err := runCLIErr("get", created.ID, filepath.Join(t.TempDir(), "x"))

		var exitErr *exec.ExitError
		require.True(t, errors.As(err, &exitErr))
		assert.True(t, strings.Contains(stderr, "not a file"), stderr)
	})
}
