package command

import "time"

// Response payloads decoded from the server envelope.

type applyResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type uploadResponse struct {
	Written uint64 `json:"written"`
}

type finalizeResponse struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Size      uint64    `json:"size" table:"bytes"`
	ExpiresAt time.Time `json:"expires_at"`
}

type limitsResponse struct {
	MaxBytes   uint64 `json:"max_bytes"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

type statusResponse struct {
	Accepting bool `json:"accepting"`
	Reserved  bool `json:"reserved"`
	Live      int  `json:"live"`
	Capacity  int  `json:"capacity"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
