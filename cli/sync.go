// ABOUTME: On-demand sync and status commands
// ABOUTME: Runs a cycle per tenant and renders the summary
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harperreed/crmsync/sync"
	"github.com/spf13/cobra"
)

func (c *CLI) newSyncCommand() *cobra.Command {
	var tenant string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a reconciliation cycle now",
		Long: `Run one reconciliation cycle for --tenant, or for every tenant in
sync.tenants when no tenant is given. Each cycle pulls every configured
system, pushes local changes back out and records the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenants, err := c.tenants(tenant)
			if err != nil {
				return err
			}

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			var failed []error
			for _, t := range tenants {
				ctx, cancel := context.WithTimeout(cmd.Context(), c.cfg.Server.SyncTimeout)
				summary, err := a.service.Sync(ctx, t)
				cancel()

				if errors.Is(err, sync.ErrCycleInProgress) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: a cycle is already running\n", t)
					continue
				}
				if summary != nil {
					if asJSON {
						enc := json.NewEncoder(cmd.OutOrStdout())
						enc.SetIndent("", "  ")
						_ = enc.Encode(summary)
					} else {
						renderSummary(cmd.OutOrStdout(), summary)
					}
				}
				if err != nil {
					failed = append(failed, fmt.Errorf("%s: %w", t, err))
				}
			}
			return errors.Join(failed...)
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant to sync (default all configured tenants)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

func (c *CLI) newStatusCommand() *cobra.Command {
	var tenant string
	var runs int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-system sync state and recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := c.tenant(tenant)
			if err != nil {
				return err
			}

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			status, err := a.service.Status(cmd.Context(), t, runs)
			if err != nil {
				return err
			}
			renderStatus(cmd.OutOrStdout(), t, status)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant (default tenant.default)")
	cmd.Flags().IntVar(&runs, "runs", 5, "number of recent runs to show")
	return cmd
}
