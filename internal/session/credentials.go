package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Credentials is the file-backed identity for a session. The token is
// issued out of band; the daemon only presents it.
type Credentials struct {
	AuthToken   string `toml:"auth_token"`
	LocalUserID string `toml:"user_id"`
}

// Token returns the bearer token for socket and API authentication.
func (c *Credentials) Token() string { return c.AuthToken }

// UserID returns the id of the local user.
func (c *Credentials) UserID() string { return c.LocalUserID }

// LoadCredentials reads the credentials file for a session.
func LoadCredentials(path string) (*Credentials, error) {
	var creds Credentials
	if _, err := toml.DecodeFile(path, &creds); err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	if creds.AuthToken == "" {
		return nil, fmt.Errorf("credentials at %s have no auth_token", path)
	}
	if creds.LocalUserID == "" {
		return nil, fmt.Errorf("credentials at %s have no user_id", path)
	}
	return &creds, nil
}

// SaveCredentials writes the credentials file with restrictive permissions.
func SaveCredentials(path string, creds *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(creds)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
