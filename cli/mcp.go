// ABOUTME: MCP server subcommand
// ABOUTME: Serves contact and sync tools over stdio for one tenant
package cli

import (
	"github.com/harperreed/crmsync/handlers"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (c *CLI) newMCPCommand() *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server on stdio",
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

			c.logger.Info("Starting MCP server", zap.String("tenant", t))

			server := handlers.NewServer(a.service, t, c.version, c.cfg.Server.SyncTimeout)
			return server.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant served by this MCP session (default tenant.default)")
	return cmd
}
