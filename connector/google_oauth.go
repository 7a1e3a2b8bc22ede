// ABOUTME: OAuth configuration and token storage for the Google Contacts connector
// ABOUTME: Keeps the token at an XDG data path with owner-only permissions
package connector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleContactsScope = "https://www.googleapis.com/auth/contacts"

// GoogleConfig holds the OAuth client credentials of the Google connector.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenPath    string
}

// NewOAuthConfig creates the OAuth2 config for read/write contacts access.
func NewOAuthConfig(cfg GoogleConfig) *oauth2.Config {
	redirect := cfg.RedirectURL
	if redirect == "" {
		redirect = "http://localhost:8080/oauth/callback"
	}

	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirect,
		Scopes:       []string{googleContactsScope},
		Endpoint:     google.Endpoint,
	}
}

// DefaultTokenPath returns the XDG-compliant path for the Google token.
func DefaultTokenPath() string {
	return filepath.Join(xdg.DataHome, "crmsync", "google-credentials.json")
}

func (cfg GoogleConfig) tokenPath() string {
	if cfg.TokenPath != "" {
		return cfg.TokenPath
	}
	return DefaultTokenPath()
}

// SaveToken writes the OAuth token with restricted permissions.
func SaveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return nil
}

// LoadToken reads a token written by SaveToken.
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var token oauth2.Token
	if err := json.NewDecoder(f).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return &token, nil
}
