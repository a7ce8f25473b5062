package config

import "strings"

// Sanitize returns a copy of the config with credentials masked, for logging.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg

	if sanitized.Storage.S3.AccessKey != "" {
		sanitized.Storage.S3.AccessKey = maskSecret(sanitized.Storage.S3.AccessKey)
	}
	if sanitized.Storage.S3.SecretKey != "" {
		sanitized.Storage.S3.SecretKey = maskSecret(sanitized.Storage.S3.SecretKey)
	}

	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
