// ABOUTME: Contact management commands
// ABOUTME: list, add and delete contacts with an immediate push to connected CRMs
package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/harperreed/crmsync/sync"
	"github.com/spf13/cobra"
)

func (c *CLI) newContactsCommand() *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage local contacts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&tenant, "tenant", "", "tenant (default tenant.default)")

	cmd.AddCommand(
		c.newContactsListCommand(&tenant),
		c.newContactsAddCommand(&tenant),
		c.newContactsDeleteCommand(&tenant),
	)
	return cmd
}

func (c *CLI) newContactsListCommand(tenant *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := c.tenant(*tenant)
			if err != nil {
				return err
			}

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			contacts, err := a.service.List(cmd.Context(), t)
			if err != nil {
				return err
			}
			renderContacts(cmd.OutOrStdout(), contacts)
			return nil
		},
	}
}

func (c *CLI) newContactsAddCommand(tenant *string) *cobra.Command {
	var in sync.ContactInput

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create or update a contact by email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := c.tenant(*tenant)
			if err != nil {
				return err
			}

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			result, err := a.service.Save(cmd.Context(), t, in)
			if err != nil {
				return err
			}

			verb := "Updated"
			if result.Created {
				verb = "Created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s <%s> (%s)\n", verb, result.Contact.Name, result.Contact.Email, result.Contact.ID)
			renderPush(cmd.OutOrStdout(), result.Push)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Name, "name", "", "contact name (required)")
	cmd.Flags().StringVar(&in.Email, "email", "", "contact email (required)")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&in.JobTitle, "job-title", "", "job title")
	cmd.Flags().StringVar(&in.Pronouns, "pronouns", "", "pronouns")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *CLI) newContactsDeleteCommand(tenant *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id|email>",
		Short: "Delete a contact locally and in every linked CRM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := c.tenant(*tenant)
			if err != nil {
				return err
			}

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			var result *sync.DeleteResult
			if id, parseErr := uuid.Parse(args[0]); parseErr == nil {
				result, err = a.service.Delete(cmd.Context(), t, id)
			} else {
				result, err = a.service.DeleteByEmail(cmd.Context(), t, args[0])
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Deleted %s\n", result.Email)
			for _, system := range result.RemoteDeleted {
				fmt.Fprintln(out, okStyle.Render("✓ removed from "+system))
			}
			for system, msg := range result.RemoteFailures {
				fmt.Fprintln(out, errorStyle.Render("✗ "+system+": "+msg))
			}
			return nil
		},
	}
}
