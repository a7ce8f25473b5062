// Package handler implements the FileBay HTTP API on top of the upload
// service.
//
// JSON responses share the envelope {code, message, request_id, timestamp,
// data}. Error codes map to HTTP status by their numeric suffix. Downloads
// stream the raw blob and /api/status also speaks websocket.
package handler
