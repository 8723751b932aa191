// Package tokenfile encodes the provider cache: the OAuth2 token (including
// the refresh token) plus the account metadata needed for a silent refresh.
// The same bytes are stored in a session record and, for the CLI, in an
// owner-only file on disk. This is a leaf package imported by session
// backings, auth, and the CLI.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token file's directory.
const DirPerms = 0o700

// Metadata keys written by the auth package.
const (
	MetaAccountID = "account_id"
	MetaUsername  = "username"
	MetaScopes    = "scopes"
)

// File is the encoded provider cache.
type File struct {
	Token *oauth2.Token     `json:"token"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Encode serializes a token and its metadata. Never logs token values.
func Encode(tok *oauth2.Token, meta map[string]string) ([]byte, error) {
	if tok == nil {
		return nil, errors.New("tokenfile: nil token")
	}

	data, err := json.MarshalIndent(File{Token: tok, Meta: meta}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("tokenfile: encoding: %w", err)
	}

	return data, nil
}

// Decode parses bytes produced by Encode. A payload without a token field
// is rejected; the caller must sign in again.
func Decode(data []byte) (*oauth2.Token, map[string]string, error) {
	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, nil, fmt.Errorf("tokenfile: decoding: %w", err)
	}

	if tf.Token == nil {
		return nil, nil, errors.New("tokenfile: missing token field (re-login required)")
	}

	return tf.Token, tf.Meta, nil
}

// ReadFile reads an encoded provider cache from disk. Returns (nil, nil) if
// the file does not exist.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	return data, nil
}

// Load reads and decodes a token file. Returns (nil, nil, nil) if the file
// does not exist.
func Load(path string) (*oauth2.Token, map[string]string, error) {
	data, err := ReadFile(path)
	if err != nil || data == nil {
		return nil, nil, err
	}

	tok, meta, err := Decode(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	return tok, meta, nil
}

// WriteFile writes data atomically (write-to-temp + rename) with 0600
// permissions.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Save encodes and writes a token file.
func Save(path string, tok *oauth2.Token, meta map[string]string) error {
	data, err := Encode(tok, meta)
	if err != nil {
		return err
	}

	return WriteFile(path, data)
}

// Remove deletes a token file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return nil
}
