// Package command defines the filebay-cli commands on urfave/cli/v2.
//
// put, get, status and info map onto the server's HTTP API. Results go to
// the app's Writer in the --output format; progress goes to ErrWriter.
package command
