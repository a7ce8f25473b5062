// Package httpserver provides the FileBay HTTP server.
//
// It uses net/http with a ServeMux per route pattern. Every route is wrapped
// in Recover, RequestID, Metrics and Audit middleware; apply and download
// are also rate limited per client IP. Notifier pushes the busy bit to
// /api/status websocket subscribers.
package httpserver
