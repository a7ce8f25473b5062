package handler

import "time"

// Response is the standard API response envelope. Every JSON response uses
// it; downloads and /metrics do not.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// ApplyResponse is the response body for POST /api/apply.
type ApplyResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UploadResponse is the response body for POST /api/upload.
type UploadResponse struct {
	Written uint64 `json:"written"`
}

// FinalizeResponse is the response body for POST /api/finalize.
type FinalizeResponse struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Size      uint64    `json:"size"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ConfigResponse is the response body for GET /api/config.
type ConfigResponse struct {
	MaxBytes   uint64 `json:"max_bytes"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

// StatusResponse is the JSON response body for GET /api/status.
type StatusResponse struct {
	Accepting bool `json:"accepting"`
	Reserved  bool `json:"reserved"`
	Live      int  `json:"live"`
	Capacity  int  `json:"capacity"`
}
