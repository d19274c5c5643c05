package email

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-directory/apps/cli/cmd/clienv"
	notificationsservice "github.com/zenGate-Global/palmyra-directory/domains/notifications/be/service"
)

// Command groups transactional email helpers.
func Command(load clienv.Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "email",
		Short: "Transactional email utilities",
	}

	request := &cobra.Command{
		Use:   "request",
		Short: "Queue a transactional email",
	}
	request.AddCommand(
		requestCommand(load, "verification", "Queue an email verification message", "link",
			func(ctx context.Context, d *notificationsservice.Dispatcher, email, name, value string) (string, error) {
				return d.RequestEmailVerification(ctx, email, name, value)
			}),
		requestCommand(load, "identity", "Queue an identity verification code", "code",
			func(ctx context.Context, d *notificationsservice.Dispatcher, email, name, value string) (string, error) {
				return d.RequestIdentityVerification(ctx, email, name, value)
			}),
		requestCommand(load, "password-reset", "Queue a password reset message", "link",
			func(ctx context.Context, d *notificationsservice.Dispatcher, email, name, value string) (string, error) {
				return d.RequestPasswordReset(ctx, email, name, value)
			}),
	)

	cmd.AddCommand(request)
	return cmd
}

type requestFunc func(ctx context.Context, d *notificationsservice.Dispatcher, email, name, value string) (string, error)

// requestCommand builds one template subcommand; valueFlag names the
// template-specific attribute (link or code).
func requestCommand(load clienv.Loader, use, short, valueFlag string, request requestFunc) *cobra.Command {
	var (
		email  string
		name   string
		value  string
		dryRun bool
	)

	c := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := load(cmd.Context(), clienv.Options{Publisher: true, DryRun: dryRun, Out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer deps.Close()

			dispatcher := notificationsservice.NewDispatcher(deps.Publisher, deps.Tenants, deps.Notifications, nil)
			id, err := request(cmd.Context(), dispatcher, email, name, value)
			if err != nil {
				return fmt.Errorf("queue %s email: %w", use, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Queued message %s\n", id)
			return nil
		},
	}

	c.Flags().StringVar(&email, "email", "", "Recipient email")
	c.Flags().StringVar(&name, "name", "", "Recipient name")
	c.Flags().StringVar(&value, valueFlag, "", "Template "+valueFlag)
	c.Flags().BoolVar(&dryRun, "dry-run", false, "Print the queue message instead of publishing it")

	_ = c.MarkFlagRequired("email")
	_ = c.MarkFlagRequired(valueFlag)

	return c
}
