// Package config holds the CLI client configuration: defaults, an optional
// JSON file (-c/-config) and short command-line flags, applied in that order.
package config
