package command

import (
	"github.com/spf13/cobra"
)

// NewSubcommandGroup builds a parent command that only exists to group its
// subcommands.
func NewSubcommandGroup(use string, subcommands ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use: use,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	cmd.AddCommand(subcommands...)
	return cmd
}
