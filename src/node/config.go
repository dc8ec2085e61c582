package node

import (
	"testing"

	"github.com/hashicorp/go-metrics"
	"github.com/mosaicnetworks/maelnode/src/common"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultEventBuffer is the capacity of the queue feeding the driver.
	DefaultEventBuffer = 100
	// DefaultOutputBuffer is the capacity of the queue feeding the writer.
	DefaultOutputBuffer = 100
	// DefaultMaxRecordSize bounds the length of a single input line.
	DefaultMaxRecordSize = 16 * 1024 * 1024
)

// Config holds the runtime parameters of a Node.
type Config struct {
	EventBuffer   int
	OutputBuffer  int
	MaxRecordSize int

	Logger     *logrus.Entry
	MetricSink metrics.MetricSink
}

// NewConfig ...
func NewConfig(eventBuffer int,
	outputBuffer int,
	maxRecordSize int,
	logger *logrus.Entry,
	sink metrics.MetricSink) *Config {

	return &Config{
		EventBuffer:   eventBuffer,
		OutputBuffer:  outputBuffer,
		MaxRecordSize: maxRecordSize,
		Logger:        logger,
		MetricSink:    sink,
	}
}

// DefaultConfig logs to stderr at debug level and discards metrics.
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		EventBuffer:   DefaultEventBuffer,
		OutputBuffer:  DefaultOutputBuffer,
		MaxRecordSize: DefaultMaxRecordSize,
		Logger:        logrus.NewEntry(logger),
		MetricSink:    &metrics.BlackholeSink{},
	}
}

// TestConfig routes the logs through t.
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.Logger = common.NewTestEntry(t, "node")
	return config
}
