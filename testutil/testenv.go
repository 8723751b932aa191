// Package testutil provides shared environment helpers for the E2E tests.
// It depends only on stdlib so that E2E tests, which drive the built binary
// and cannot import internal/, can use it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AllowlistEnv lists the drive IDs or site URLs that E2E runs may write to.
const AllowlistEnv = "IRDRIVE_ALLOWED_TEST_TARGETS"

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// ValidateAllowlist exits the process unless the target named by targetEnv
// appears in the allowlist. Comparison ignores case and trailing slashes so
// that site URLs match however they were pasted.
func ValidateAllowlist(targetEnv string) string {
	allowlist := os.Getenv(AllowlistEnv)
	if allowlist == "" {
		fatalf("%s not set\nExample: %s=https://contoso.sharepoint.com/sites/IR-Test", AllowlistEnv, AllowlistEnv)
	}

	target := os.Getenv(targetEnv)
	if target == "" {
		fatalf("%s not set", targetEnv)
	}

	for _, a := range strings.Split(allowlist, ",") {
		if normalizeTarget(a) == normalizeTarget(target) {
			return target
		}
	}

	fatalf("%s=%q is not in %s=%q", targetEnv, target, AllowlistEnv, allowlist)

	return ""
}

func normalizeTarget(s string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(s), "/"))
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

// FindTestCredentialDir locates .testdata/ relative to the module root.
// It must hold config.toml and token.json written by `irdrive login`.
func FindTestCredentialDir(moduleRoot string) string {
	dir := filepath.Join(moduleRoot, ".testdata")

	if _, err := os.Stat(dir); err != nil {
		fatalf(".testdata/ directory not found at %s\n"+
			"Sign in once with IRDRIVE_CONFIG=.testdata/config.toml and copy token.json there.", dir)
	}

	return dir
}

// CopyFile copies src to dst with the given permissions. Exits on failure
// because tests cannot proceed without the file.
func CopyFile(src, dst string, perm os.FileMode) {
	data, err := os.ReadFile(src)
	if err != nil {
		fatalf("cannot read %s: %v", src, err)
	}

	if err := os.WriteFile(dst, data, perm); err != nil {
		fatalf("writing %s: %v", dst, err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FATAL: "+format+"\n", args...)
	os.Exit(1)
}
