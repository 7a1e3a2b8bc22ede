// ABOUTME: Authentication commands for external systems
// ABOUTME: Google OAuth browser flow and integration.app workspace credentials
package cli

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/harperreed/crmsync/config"
	"github.com/harperreed/crmsync/connector"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"
	"golang.org/x/term"
)

func (c *CLI) newAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with external systems",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(c.newAuthGoogleCommand(), c.newAuthIntegrationAppCommand())
	return cmd
}

func (c *CLI) newAuthGoogleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "google",
		Short: "Authorize read/write access to Google Contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !c.cfg.Google.Enabled() {
				return errors.New("google.client_id and google.client_secret must be configured")
			}

			gcfg := googleConfig(c.cfg)
			token, err := runOAuthFlow(cmd.Context(), connector.NewOAuthConfig(gcfg), cmd.OutOrStdout())
			if err != nil {
				return err
			}

			path := gcfg.TokenPath
			if path == "" {
				path = connector.DefaultTokenPath()
			}
			if err := connector.SaveToken(path, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\n✓ Authenticated successfully\n")
			fmt.Fprintf(out, "✓ Token saved to %s\n\n", path)
			fmt.Fprintln(out, "Add \"google\" to sync.systems to include Google Contacts in cycles.")
			return nil
		},
	}
}

// runOAuthFlow serves the redirect URL locally and waits for the callback.
func runOAuthFlow(ctx context.Context, oauthCfg *oauth2.Config, out io.Writer) (*oauth2.Token, error) {
	redirect, err := url.Parse(oauthCfg.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL: %w", err)
	}

	state, err := randomState()
	if err != nil {
		return nil, err
	}

	callbackChan := make(chan *oauth2.Token, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			errChan <- errors.New("OAuth state mismatch")
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			errChan <- errors.New("no authorization code received")
			return
		}

		token, err := oauthCfg.Exchange(r.Context(), code)
		if err != nil {
			http.Error(w, "token exchange failed", http.StatusBadGateway)
			errChan <- fmt.Errorf("failed to exchange code: %w", err)
			return
		}

		_, _ = fmt.Fprintf(w, "Authorization successful! You can close this window.")
		callbackChan <- token
	})

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", redirect.Host, err)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	defer func() { _ = server.Shutdown(context.Background()) }()

	authURL := oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintln(out, "Opening browser for Google OAuth...")
	fmt.Fprintf(out, "\nIf browser doesn't open, visit this URL:\n%s\n\n", authURL)
	_ = openBrowser(authURL)

	select {
	case token := <-callbackChan:
		return token, nil
	case err := <-errChan:
		return nil, fmt.Errorf("OAuth flow failed: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// openBrowser attempts to open URL in default browser
func openBrowser(target string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{target}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", target}
	default:
		cmd = "xdg-open"
		args = []string{target}
	}

	return exec.Command(cmd, args...).Start()
}

func (c *CLI) newAuthIntegrationAppCommand() *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "integration-app",
		Short: "Store integration.app workspace credentials",
		Long: `Prompt for the integration.app workspace key and secret, verify that a
customer token can be minted with them, and save them to the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reader := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			fmt.Fprint(out, "Workspace key: ")
			key, err := reader.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("failed to read workspace key: %w", err)
			}
			key = strings.TrimSpace(key)

			fmt.Fprint(out, "Workspace secret: ")
			secret, err := readSecret(reader)
			if err != nil {
				return fmt.Errorf("failed to read workspace secret: %w", err)
			}
			fmt.Fprintln(out)

			iaCfg := integrationAppConfig(c.cfg)
			iaCfg.WorkspaceKey, iaCfg.WorkspaceSecret = key, secret

			t := tenant
			if t == "" {
				t = "crmsync-check"
			}
			if _, err := connector.CustomerToken(iaCfg, t, time.Now()); err != nil {
				return err
			}

			path, err := saveCredentials(c.configPath, key, secret)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Credentials saved to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant used to verify token minting")
	return cmd
}

// readSecret reads without echo from a terminal, or a plain line otherwise.
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// saveCredentials merges the workspace credentials into the config file.
func saveCredentials(configPath, key, secret string) (string, error) {
	path := configPath
	if path == "" {
		path = filepath.Join(config.DefaultConfigDir(), "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return "", fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.Set("integration_app.workspace_key", key)
	v.Set("integration_app.workspace_secret", secret)
	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		return "", fmt.Errorf("failed to restrict config file: %w", err)
	}
	return path, nil
}
