package account

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-directory/apps/cli/cmd/clienv"
	directoryservice "github.com/zenGate-Global/palmyra-directory/domains/directory/be/service"
)

// Command groups identity account helpers.
func Command(load clienv.Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Identity account utilities",
	}

	cmd.AddCommand(lookupCommand(load))
	return cmd
}

func lookupCommand(load clienv.Loader) *cobra.Command {
	var uid, email string

	c := &cobra.Command{
		Use:   "lookup",
		Short: "Find an identity account by uid or, when no uid is given, by email",
		RunE: func(cmd *cobra.Command, args []string) error {
			if uid == "" && email == "" {
				return errors.New("one of --uid or --email is required")
			}

			deps, err := load(cmd.Context(), clienv.Options{})
			if err != nil {
				return err
			}
			defer deps.Close()

			acc := directoryservice.FindAccount(cmd.Context(), deps.Accounts, uid, email)
			if acc == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No account found.")
				return nil
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(acc)
		},
	}

	c.Flags().StringVar(&uid, "uid", "", "Account uid (takes precedence over --email)")
	c.Flags().StringVar(&email, "email", "", "Account email")
	return c
}
