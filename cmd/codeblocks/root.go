package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags
var Version = "0.0.0-dev"

const defaultServer = "http://localhost:5000"

// clientFlags are shared by every command that talks to a running server
type clientFlags struct {
	server      string
	participant string
}

func newRootCmd() *cobra.Command {
	flags := &clientFlags{}

	root := &cobra.Command{
		Use:           "codeblocks",
		Short:         "Live mentor/student code exercises",
		Long:          `codeblocks serves code exercises whose buffer is shared live between a mentor and students, and lets a terminal join one.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			pterm.SetDefaultOutput(cmd.OutOrStdout())
		},
	}

	root.PersistentFlags().StringVar(&flags.server, "server", defaultServer, "base URL of a codeblocks server")
	root.PersistentFlags().StringVar(&flags.participant, "participant", "", "participant handle (defaults to $CODEBLOCKS_PARTICIPANT)")

	root.AddCommand(
		newServeCmd(),
		newCatalogCmd(flags),
		newJoinCmd(flags),
		newCheckCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			pterm.Printfln("codeblocks %s", Version)
		},
	}
}
