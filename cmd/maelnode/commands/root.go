package commands

import (
	"github.com/mosaicnetworks/maelnode/src/config"
	"github.com/spf13/cobra"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for maelnode
var RootCmd = &cobra.Command{
	Use:              "maelnode",
	Short:            "Maelstrom node",
	TraverseChildren: true,
}

func init() {
	RootCmd.PersistentFlags().String("datadir", _config.DataDir, "Directory containing an optional maelnode.toml")
	RootCmd.PersistentFlags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	RootCmd.PersistentFlags().String("log-file", _config.LogFile, "Also write logs to this file")
	RootCmd.PersistentFlags().Bool("metrics", _config.Metrics, "Collect metrics, dumped to stderr on SIGUSR1")
	RootCmd.PersistentFlags().Int("event-buffer", _config.EventBuffer, "Capacity of the input queue")
	RootCmd.PersistentFlags().Int("output-buffer", _config.OutputBuffer, "Capacity of the output queue")
	RootCmd.PersistentFlags().Int("max-record-size", _config.MaxRecordSize, "Max length of an input line")
}
