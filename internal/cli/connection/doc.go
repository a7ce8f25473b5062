// Package connection talks to a filebay server for filebay-cli.
//
// HTTPClient wraps the JSON envelope returned by every API route and turns
// error envelopes into *APIError values. StatusStream follows the busy bit
// over the /api/status websocket.
package connection
