// Package main provides the entry point for filebay-cli.
//
//	filebay-cli put report.pdf        # prints a six digit code
//	filebay-cli get 482913            # saves the file under its stored name
//	filebay-cli status --watch        # follows busy/idle changes
//
// Defaults come from ~/.filebay/cli.yaml (server, output, chunk_size).
package main
