// Package localserver provides the local admin socket.
//
// It listens on a Unix domain socket and answers one line per command:
//
//	status            engine counters and uptime
//	flush             write the snapshot now
//	sweep             run an expiry sweep now
//	loglevel [LEVEL]  show or change the log level
//	shutdown          begin graceful shutdown
//
// Replies start with "OK" or "ERR". Access is controlled by the socket's
// file mode.
package localserver
