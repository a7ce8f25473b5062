// Package shutdown coordinates graceful termination of filebay-server.
//
// Hooks are registered as the server starts its components and run in
// reverse order on SIGINT or SIGTERM, under a single timeout.
package shutdown
