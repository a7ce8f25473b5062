// Package output renders filebay-cli results as a table, JSON or YAML and
// draws transfer progress.
package output
