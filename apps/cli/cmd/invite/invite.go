package invite

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-directory/apps/cli/cmd/clienv"
	notificationsservice "github.com/zenGate-Global/palmyra-directory/domains/notifications/be/service"
)

// Command groups invitation helpers.
func Command(load clienv.Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Tenant invitation utilities",
	}

	cmd.AddCommand(sendCommand(load))
	return cmd
}

func sendCommand(load clienv.Loader) *cobra.Command {
	var (
		tenantID string
		email    string
		name     string
		message  string
		dryRun   bool
	)

	c := &cobra.Command{
		Use:   "send",
		Short: "Queue an invitation email for a user invited to a tenant",
		Long: "Queue an invitation email for a user invited to a tenant. The tenant name is read from " +
			"tenants/{tenant}. Use this while automatic invitations (INVITATIONS_ENABLED) are off.",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := load(cmd.Context(), clienv.Options{Publisher: true, DryRun: dryRun, Out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer deps.Close()

			in := notificationsservice.InvitationInput{
				TenantID: tenantID,
				Email:    email,
				Role:     notificationsservice.RoleInvited,
				Name:     name,
			}
			if cmd.Flags().Changed("message") {
				in.Message = &message
			}

			dispatcher := notificationsservice.NewDispatcher(deps.Publisher, deps.Tenants, deps.Notifications, nil)
			if err := dispatcher.SendUserInvitation(cmd.Context(), in); err != nil {
				return fmt.Errorf("send invitation: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Invitation queued for %s on tenant %s\n", email, tenantID)
			return nil
		},
	}

	c.Flags().StringVar(&tenantID, "tenant", "", "Tenant id")
	c.Flags().StringVar(&email, "email", "", "Invited user email")
	c.Flags().StringVar(&name, "name", "", "Invited user name")
	c.Flags().StringVar(&message, "message", "", "Personalized invitation text")
	c.Flags().BoolVar(&dryRun, "dry-run", false, "Print the queue message instead of publishing it")

	_ = c.MarkFlagRequired("tenant")
	_ = c.MarkFlagRequired("email")

	return c
}
