// ABOUTME: Root cobra command and shared CLI state
// ABOUTME: Loads configuration and the logger before any subcommand runs
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/crmsync/config"
	"github.com/harperreed/crmsync/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// CLI carries state shared by every command.
type CLI struct {
	version    string
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
}

// Execute runs the command line with os.Args.
func Execute(version string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewRootCommand(version).ExecuteContext(ctx)
}

// NewRootCommand builds the full command tree.
func NewRootCommand(version string) *cobra.Command {
	c := &CLI{version: version}

	root := &cobra.Command{
		Use:     "crmsync",
		Short:   "Keep contacts in sync between a local store and external CRMs",
		Version: version,
		Long: `crmsync reconciles a local contact store with external CRMs such as
HubSpot, Pipedrive and Google Contacts. Contacts are matched by email,
conflicts resolve to the most recently updated side, and deletions are
remembered so they are not resurrected.`,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/crmsync/config.yaml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		c.newServeCommand(),
		c.newDaemonCommand(),
		c.newMCPCommand(),
		c.newSyncCommand(),
		c.newStatusCommand(),
		c.newContactsCommand(),
		c.newMigrateCommand(),
		c.newAuthCommand(),
	)

	return root
}

func (c *CLI) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	c.cfg = cfg
	c.logger = logger
	return nil
}

// tenants returns the explicit tenant or every configured one.
func (c *CLI) tenants(explicit string) ([]string, error) {
	if explicit != "" {
		return []string{explicit}, nil
	}
	if len(c.cfg.Sync.Tenants) > 0 {
		return c.cfg.Sync.Tenants, nil
	}
	if c.cfg.Tenant.Default != "" {
		return []string{c.cfg.Tenant.Default}, nil
	}
	return nil, fmt.Errorf("no tenant given: use --tenant, sync.tenants or tenant.default")
}

// tenant resolves a single tenant for commands that act on one.
func (c *CLI) tenant(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if c.cfg.Tenant.Default != "" {
		return c.cfg.Tenant.Default, nil
	}
	return "", fmt.Errorf("no tenant given: use --tenant or tenant.default")
}
