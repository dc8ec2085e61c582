package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/maelnode/src/message"
	"github.com/mosaicnetworks/maelnode/src/node"
	"github.com/mosaicnetworks/maelnode/src/retry"
	"github.com/mosaicnetworks/maelnode/src/workload/broadcast"
	"github.com/mosaicnetworks/maelnode/src/workload/echo"
	"github.com/mosaicnetworks/maelnode/src/workload/uniqueids"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewEchoCmd returns the command running an echo node
func NewEchoCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "echo",
		Short:   "Run an echo node",
		PreRunE: loadConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(echo.Codec, echo.New)
		},
	}
}

//NewUniqueIDsCmd returns the command running a unique-ids node
func NewUniqueIDsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "unique-ids",
		Short:   "Run a unique id generation node",
		PreRunE: loadConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(uniqueids.Codec, uniqueids.New)
		},
	}
}

//NewBroadcastCmd returns the command running a broadcast node
func NewBroadcastCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "broadcast",
		Short:   "Run a broadcast node",
		PreRunE: loadConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(broadcast.Codec, broadcast.NewConstructor(broadcast.Config{
				OutboxDelay: _config.OutboxDelay,
				Backoff: retry.Linear{
					Base: _config.RetryBase,
					Cap:  _config.RetryCap,
				},
			}))
		},
	}

	cmd.Flags().Duration("outbox-delay", _config.OutboxDelay, "Time gossip is held to be merged")
	cmd.Flags().Duration("retry-base", _config.RetryBase, "Delay before the first retry of unacknowledged gossip")
	cmd.Flags().Int("retry-cap", _config.RetryCap, "Max multiple of retry-base between retries")

	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

// runNode serves the node protocol on stdin and stdout until stdin is closed.
func runNode[B message.Body](codec *message.Codec[B], newState node.Constructor[B]) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n := node.NewNode(_config.NodeConfig(), codec, newState)

	err := n.Run(ctx, os.Stdin, os.Stdout)
	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		_config.Logger().Info("Interrupted")
		return nil
	}
	return err
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	if err := _config.Validate(); err != nil {
		return err
	}

	_config.Logger().WithFields(logrus.Fields{
		"DataDir":       _config.DataDir,
		"LogLevel":      _config.LogLevel,
		"LogFile":       _config.LogFile,
		"Metrics":       _config.Metrics,
		"EventBuffer":   _config.EventBuffer,
		"OutputBuffer":  _config.OutputBuffer,
		"MaxRecordSize": _config.MaxRecordSize,
		"OutboxDelay":   _config.OutboxDelay,
		"RetryBase":     _config.RetryBase,
		"RetryCap":      _config.RetryCap,
	}).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/maelnode.toml (.json, .yaml also work)
	viper.SetConfigName("maelnode")
	viper.AddConfigPath(_config.DataDir)

	// If a config file is found, read it in. The logger is not built yet: it
	// depends on what the file says.
	notFound := false
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		notFound = true
	}

	// second unmarshal to read from config file
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	if notFound {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	}

	return nil
}
