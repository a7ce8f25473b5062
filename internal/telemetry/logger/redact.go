package logger

import (
	"log/slog"
	"strings"
)

// Keys whose values are capabilities. Matched exactly, any value kind.
var capabilityKeys = map[string]struct{}{
	"token": {},
	"code":  {},
}

// Key fragments that mark credentials.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"access_key",
}

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

// redactSensitive is the ReplaceAttr hook of every handler built by New.
func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}

	if _, ok := capabilityKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, maskCapability(a.Value.String()))
	}

	if a.Value.Kind() == slog.KindString && a.Value.String() != "" && isSensitiveKey(a.Key) {
		return slog.String(a.Key, redactedValue)
	}
	return a
}

// maskCapability masks a capability, keeping its first two characters so
// log lines about the same upload can still be correlated.
func maskCapability(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return value[:2] + strings.Repeat("*", len(value)-2)
}

// isSensitiveKey reports whether a key name marks a secret.
func isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	if _, ok := capabilityKeys[keyLower]; ok {
		return true
	}
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}
