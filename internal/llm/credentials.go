// Package llm - credentials.go manages the single model-provider secret.
// The secret lives in the OS keyring when one is available; headless
// hosts fall back to a 0600 file under the data directory.
package llm

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

// keyringService namespaces Solace secrets in the OS keyring.
const keyringService = "solace"

// Credentials is a narrow get/set/has/remove store over one named secret.
type Credentials struct {
	name     string // secret name, e.g. "provider-api-key"
	filePath string // fallback location when no keyring is available
}

// NewCredentials creates a credential store for the named secret.
// dataDir holds the file fallback for hosts without a keyring daemon.
func NewCredentials(name, dataDir string) *Credentials {
	return &Credentials{
		name:     name,
		filePath: filepath.Join(dataDir, name+".secret"),
	}
}

// Get returns the stored secret, or an error if none is stored.
func (c *Credentials) Get() (string, error) {
	secret, err := keyring.Get(keyringService, c.name)
	if err == nil {
		return secret, nil
	}
	if err != keyring.ErrNotFound {
		slog.Debug("keyring unavailable, trying file fallback", "error", err)
	}

	data, ferr := os.ReadFile(c.filePath)
	if ferr != nil {
		if os.IsNotExist(ferr) {
			return "", fmt.Errorf("no credential stored for %q", c.name)
		}
		return "", fmt.Errorf("read credential file: %w", ferr)
	}
	return strings.TrimSpace(string(data)), nil
}

// Set stores the secret, preferring the OS keyring.
func (c *Credentials) Set(secret string) error {
	err := keyring.Set(keyringService, c.name, secret)
	if err == nil {
		return nil
	}
	slog.Debug("keyring set failed, using file fallback", "error", err)

	if err := os.MkdirAll(filepath.Dir(c.filePath), 0o755); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	if err := os.WriteFile(c.filePath, []byte(secret), 0o600); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	return nil
}

// Has reports whether a non-empty secret is stored.
func (c *Credentials) Has() bool {
	secret, err := c.Get()
	return err == nil && secret != ""
}

// Remove deletes the secret from both the keyring and the file fallback.
func (c *Credentials) Remove() error {
	kerr := keyring.Delete(keyringService, c.name)
	ferr := os.Remove(c.filePath)
	if kerr != nil && kerr != keyring.ErrNotFound && ferr != nil && !os.IsNotExist(ferr) {
		return fmt.Errorf("remove credential: %w", kerr)
	}
	return nil
}
