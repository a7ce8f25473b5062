package logger

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	requestIDKey
)

// WithRequest stores the request ID and a logger that tags every line with
// it. A nil base uses slog.Default().
func WithRequest(ctx context.Context, base *slog.Logger, requestID string) context.Context {
	if base == nil {
		base = slog.Default()
	}
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	return context.WithValue(ctx, loggerKey, base.With("request_id", requestID))
}

// RequestID returns the ID stored by WithRequest, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// L returns the request logger, or slog.Default() outside a request.
func L(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
