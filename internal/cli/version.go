package cli

import "github.com/spf13/cobra"

// version is stamped at build time via -ldflags.
var version = "dev"

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pagemirror version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("pagemirror " + version)
		},
	}
}
