package config

import (
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/mosaicnetworks/maelnode/src/common"
	"github.com/mosaicnetworks/maelnode/src/node"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default configuration values.
const (
	DefaultLogLevel      = "info"
	DefaultLogFile       = ""
	DefaultMetrics       = false
	DefaultEventBuffer   = node.DefaultEventBuffer
	DefaultOutputBuffer  = node.DefaultOutputBuffer
	DefaultMaxRecordSize = node.DefaultMaxRecordSize
	DefaultOutboxDelay   = 50 * time.Millisecond
	DefaultRetryBase     = 100 * time.Millisecond
	DefaultRetryCap      = 10
)

// Config contains all the configuration properties of a maelnode process.
type Config struct {
	// DataDir is where an optional maelnode.toml or maelnode.yaml is looked
	// for.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output. Logs always go to
	// stderr since stdout carries the protocol.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of every log entry.
	LogFile string `mapstructure:"log-file"`

	// Metrics enables an in-memory metrics sink, dumped to stderr when the
	// process receives SIGUSR1.
	Metrics bool `mapstructure:"metrics"`

	// EventBuffer is the capacity of the queue between the input and the
	// state machine.
	EventBuffer int `mapstructure:"event-buffer"`

	// OutputBuffer is the capacity of the queue between the state machine and
	// the output.
	OutputBuffer int `mapstructure:"output-buffer"`

	// MaxRecordSize is the maximum length of an input line.
	MaxRecordSize int `mapstructure:"max-record-size"`

	// OutboxDelay is how long gossip to a peer is held back to be merged with
	// later gossip to the same peer.
	OutboxDelay time.Duration `mapstructure:"outbox-delay"`

	// RetryBase and RetryCap define the backoff of unacknowledged messages:
	// after n attempts the next retry waits RetryBase*min(n+1, RetryCap).
	// RetryCap must be at least 1.
	RetryBase time.Duration `mapstructure:"retry-base"`
	RetryCap  int           `mapstructure:"retry-cap"`

	logger *logrus.Logger
	sink   metrics.MetricSink
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	return &Config{
		DataDir:       DefaultDataDir(),
		LogLevel:      DefaultLogLevel,
		LogFile:       DefaultLogFile,
		Metrics:       DefaultMetrics,
		EventBuffer:   DefaultEventBuffer,
		OutputBuffer:  DefaultOutputBuffer,
		MaxRecordSize: DefaultMaxRecordSize,
		OutboxDelay:   DefaultOutboxDelay,
		RetryBase:     DefaultRetryBase,
		RetryCap:      DefaultRetryCap,
	}
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t)
	return config
}

// Logger returns a formatted logrus Entry, with prefix set to "maelnode".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Out = os.Stderr
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			c.logger.Hooks.Add(lfshook.NewHook(
				lfshook.PathMap{
					logrus.DebugLevel: c.LogFile,
					logrus.InfoLevel:  c.LogFile,
					logrus.WarnLevel:  c.LogFile,
					logrus.ErrorLevel: c.LogFile,
					logrus.FatalLevel: c.LogFile,
					logrus.PanicLevel: c.LogFile,
				},
				&logrus.JSONFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "maelnode")
}

// MetricSink returns the sink runtime metrics are emitted to.
func (c *Config) MetricSink() metrics.MetricSink {
	if c.sink == nil {
		if c.Metrics {
			inm := metrics.NewInmemSink(10*time.Second, time.Minute)
			metrics.DefaultInmemSignal(inm)
			c.sink = inm
		} else {
			c.sink = &metrics.BlackholeSink{}
		}
	}
	return c.sink
}

// NodeConfig returns the configuration of the node runtime.
func (c *Config) NodeConfig() *node.Config {
	return node.NewConfig(c.EventBuffer,
		c.OutputBuffer,
		c.MaxRecordSize,
		c.Logger(),
		c.MetricSink(),
	)
}

// DefaultDataDir is the working directory.
func DefaultDataDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}

// ErrInvalidConfig is wrapped by the errors returned by Validate.
var ErrInvalidConfig = errors.New("config: invalid value")

// Validate rejects values the runtime cannot honour.
func (c *Config) Validate() error {
	if c.RetryCap < 1 {
		return fmt.Errorf("%w: retry-cap must be at least 1, got %d", ErrInvalidConfig, c.RetryCap)
	}
	if c.RetryBase <= 0 {
		return fmt.Errorf("%w: retry-base must be positive, got %v", ErrInvalidConfig, c.RetryBase)
	}
	if c.EventBuffer < 0 || c.OutputBuffer < 0 {
		return fmt.Errorf("%w: buffers cannot be negative", ErrInvalidConfig)
	}
	if c.MaxRecordSize <= 0 {
		return fmt.Errorf("%w: max-record-size must be positive, got %d", ErrInvalidConfig, c.MaxRecordSize)
	}
	return nil
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
