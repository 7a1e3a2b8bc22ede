// ABOUTME: Schema migration commands for the SQLite store
// ABOUTME: up, down and version over the embedded migrations
package cli

import (
	"fmt"

	"github.com/harperreed/crmsync/db"
	"github.com/spf13/cobra"
)

func (c *CLI) newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQLite schema",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(cmd, args); err != nil {
				return err
			}
			if c.cfg.Database.Driver != "sqlite" {
				return fmt.Errorf("migrations only apply to the sqlite driver, not %q", c.cfg.Database.Driver)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRawDatabase(cmd, func(path string) error {
				database, err := db.Open(path)
				if err != nil {
					return err
				}
				defer func() { _ = database.Close() }()
				return db.MigrateDown(database, steps)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back (0 = all)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withRawDatabase(cmd, func(path string) error {
					database, err := db.Open(path)
					if err != nil {
						return err
					}
					defer func() { _ = database.Close() }()
					return db.Migrate(database)
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withRawDatabase(cmd, func(string) error { return nil })
			},
		},
	)

	return cmd
}

// withRawDatabase runs fn against the configured path and reports the
// resulting schema version.
func (c *CLI) withRawDatabase(cmd *cobra.Command, fn func(path string) error) error {
	path := c.cfg.Database.Path
	if err := fn(path); err != nil {
		return err
	}

	database, err := db.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	version, dirty, err := db.SchemaVersion(database)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d", version)
	if dirty {
		fmt.Fprint(cmd.OutOrStdout(), " (dirty)")
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}
