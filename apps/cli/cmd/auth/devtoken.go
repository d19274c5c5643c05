package auth

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-directory/platform/go/auth/devtoken"
)

// Command returns the auth command group.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication helpers for local push delivery",
	}
	cmd.AddCommand(devTokenCommand())
	return cmd
}

func devTokenCommand() *cobra.Command {
	var params devtoken.Params

	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Generate an unsigned OIDC token accepted when PUSH_AUTH=unsigned",
		Example: `  token=$(palmyra-directory auth devtoken --audience http://localhost:8080 --email push@local.test)
  curl -H "Authorization: Bearer $token" -d @push.json http://localhost:8080/pubsub/emails`,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := devtoken.BuildUnsignedIDToken(params, time.Now().UTC())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	// Required claims
	cmd.Flags().StringVar(&params.Audience, "audience", "", "aud claim; must match PUSH_AUDIENCE")
	cmd.Flags().StringVar(&params.Email, "email", "", "service account email claim")

	// Optional claims
	cmd.Flags().StringVar(&params.Subject, "subject", "", "sub claim; defaults to email")
	cmd.Flags().BoolVar(&params.EmailVerified, "email-verified", true, "email_verified claim")
	cmd.Flags().DurationVar(&params.ExpiresIn, "expires-in", time.Hour, "token lifetime (e.g. 30m, 2h)")
	cmd.Flags().StringVar(&params.Issuer, "issuer", "", "override iss; defaults to https://accounts.google.com")

	_ = cmd.MarkFlagRequired("audience")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
