package root

import (
	"github.com/zenGate-Global/palmyra-directory/apps/cli/cmd/account"
	"github.com/zenGate-Global/palmyra-directory/apps/cli/cmd/auth"
	"github.com/zenGate-Global/palmyra-directory/apps/cli/cmd/clienv"
	"github.com/zenGate-Global/palmyra-directory/apps/cli/cmd/email"
	"github.com/zenGate-Global/palmyra-directory/apps/cli/cmd/invite"
)

func init() {
	Root().AddCommand(account.Command(clienv.Load))
	Root().AddCommand(invite.Command(clienv.Load))
	Root().AddCommand(email.Command(clienv.Load))
	Root().AddCommand(auth.Command())
}
