// ABOUTME: Long-running commands: HTTP API server and sync daemon
// ABOUTME: serve runs the API plus the scheduler, daemon runs only the scheduler
package cli

import (
	"context"

	"github.com/harperreed/crmsync/metrics"
	"github.com/harperreed/crmsync/sync"
	"github.com/harperreed/crmsync/web"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (c *CLI) newServeCommand() *cobra.Command {
	var addr string
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background sync scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if addr == "" {
				addr = c.cfg.Server.Addr
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			done := make(chan struct{})
			if noScheduler || len(c.cfg.Sync.Tenants) == 0 {
				close(done)
				c.logger.Info("Scheduler disabled, cycles run on demand only")
			} else {
				go func() {
					defer close(done)
					sync.NewScheduler(a.engine, c.cfg.Sync.Tenants, c.logger, 0).Start(ctx, c.cfg.Sync.Interval)
				}()
			}

			router := web.NewRouter(web.Deps{
				Contacts:      a.service,
				Metrics:       metrics.Handler(a.registry),
				DefaultTenant: c.cfg.Tenant.Default,
				SyncTimeout:   c.cfg.Server.SyncTimeout,
				Logger:        c.logger,
			})

			err = web.NewServer(addr, router, c.logger).Run(ctx)
			cancel()
			<-done
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from server.addr)")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not run scheduled cycles")
	return cmd
}

func (c *CLI) newDaemonCommand() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run scheduled sync cycles for every configured tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenants, err := c.tenants("")
			if err != nil {
				return err
			}

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			scheduler := sync.NewScheduler(a.engine, tenants, c.logger, 0)
			if once {
				scheduler.RunOnce(cmd.Context())
				return nil
			}

			c.logger.Info("Starting sync daemon",
				zap.Strings("tenants", tenants),
				zap.Duration("interval", c.cfg.Sync.Interval),
			)
			scheduler.Start(cmd.Context(), c.cfg.Sync.Interval)
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single round and exit")
	return cmd
}
