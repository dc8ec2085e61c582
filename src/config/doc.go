// Package config defines the configuration of a maelnode process.
//
// The command line binds its flags into a Config, optionally overridden by a
// maelnode.toml or maelnode.yaml file found in Config.DataDir. The Config then
// produces the logger, the metric sink and the node.Config of the process.
// Workload tuning, such as the gossip delay and the retry backoff, lives here
// too.
package config
