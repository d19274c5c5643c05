package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the directory CLI. Subcommands (account, invite, email, auth) are attached here.
var rootCmd = &cobra.Command{
	Use:           "palmyra-directory",
	Short:         "Palmyra directory CLI",
	Long:          "Operational utilities for the Palmyra user directory (account lookup, invitations, transactional emails, local push tokens).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
