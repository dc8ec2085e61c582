package main

import (
	"os"

	"github.com/mosaicnetworks/maelnode/cmd/maelnode/commands"
)

func main() {
	rootCmd := commands.RootCmd

	rootCmd.AddCommand(
		commands.NewEchoCmd(),
		commands.NewUniqueIDsCmd(),
		commands.NewBroadcastCmd(),
		commands.VersionCmd,
	)

	//Do not print usage when error occurs
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
