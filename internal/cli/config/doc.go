// Package config loads filebay-cli defaults from ~/.filebay/cli.yaml and
// FILEBAY_CLI_ environment variables. Command-line flags override both.
package config
