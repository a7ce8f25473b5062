package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/twinisland/filebay/internal/core/domain"
	"github.com/twinisland/filebay/internal/core/service"
	"github.com/twinisland/filebay/internal/telemetry/logger"
)

// Uploads is the session coordinator the API drives.
type Uploads interface {
	Apply(ctx context.Context) (*service.ApplyResponse, error)
	Upload(ctx context.Context, req *service.UploadRequest) (*service.UploadResponse, error)
	Finalize(ctx context.Context, req *service.FinalizeRequest) (*service.FinalizeResponse, error)
	Abandon(ctx context.Context, token string) error
	Download(ctx context.Context, code string) (*service.DownloadResponse, error)
	Status(ctx context.Context) service.Status
	Limits() service.Limits
}

// StatusFeed delivers the busy bit on every notifier tick.
type StatusFeed interface {
	Subscribe() (uuid.UUID, <-chan bool)
	Unsubscribe(id uuid.UUID)
}

// Route binds a ServeMux pattern to a handler. Limited routes are subject
// to per-client rate limiting.
type Route struct {
	Pattern string
	Handler http.HandlerFunc
	Limited bool
}

// Config holds the Handler dependencies.
type Config struct {
	Uploads Uploads
	Status  StatusFeed
	Metrics http.Handler
	Logger  *slog.Logger

	// Ready reports readiness for /ready. Nil means always ready.
	Ready func() bool

	// WriteWait bounds each websocket frame write.
	WriteWait time.Duration
}

// Handler serves the FileBay HTTP API.
type Handler struct {
	uploads   Uploads
	status    StatusFeed
	metrics   http.Handler
	logger    *slog.Logger
	ready     func() bool
	writeWait time.Duration
}

// New creates a new Handler.
func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Ready == nil {
		cfg.Ready = func() bool { return true }
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	return &Handler{
		uploads:   cfg.Uploads,
		status:    cfg.Status,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		ready:     cfg.Ready,
		writeWait: cfg.WriteWait,
	}
}

// Routes returns every API route.
func (h *Handler) Routes() []Route {
	routes := []Route{
		{Pattern: "GET /health", Handler: h.handleHealth},
		{Pattern: "GET /ready", Handler: h.handleReady},

		{Pattern: "POST /api/apply", Handler: h.handleApply, Limited: true},
		{Pattern: "POST /api/upload", Handler: h.handleUpload},
		{Pattern: "POST /api/finalize", Handler: h.handleFinalize},
		{Pattern: "POST /api/abandon", Handler: h.handleAbandon},
		{Pattern: "GET /api/download/{code}", Handler: h.handleDownload, Limited: true},
		{Pattern: "GET /api/config", Handler: h.handleConfig},
		{Pattern: "GET /api/status", Handler: h.handleStatus},
	}
	if h.metrics != nil {
		routes = append(routes, Route{Pattern: "GET /metrics", Handler: h.metrics.ServeHTTP})
	}
	return routes
}

// ServeHTTP serves all routes without middleware. Used by tests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	for _, rt := range h.Routes() {
		mux.HandleFunc(rt.Pattern, rt.Handler)
	}
	mux.ServeHTTP(w, r)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := logger.RequestID(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewResponse(requestID, data)); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := logger.RequestID(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(NewErrorResponse(requestID, code, message, details))
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		logger.L(r.Context()).Error("internal error", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, domain.ErrInternal.Code, "internal server error", nil)
		return
	}

	status := errorCodeToHTTPStatus(de.Code)
	if status >= http.StatusInternalServerError {
		logger.L(r.Context()).Error("request failed", "error_code", de.Code, "error", err)
	}

	var details any
	if de.Details != "" {
		details = de.Details
	}
	h.writeError(w, r, status, de.Code, de.Message, details)
}

// errorCodeToHTTPStatus maps error codes to HTTP status codes by their
// numeric suffix.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasSuffix(code, "-4000"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-4030"):
		return http.StatusForbidden
	case strings.HasSuffix(code, "-4040"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4090"):
		return http.StatusConflict
	case strings.HasSuffix(code, "-4130"):
		return http.StatusRequestEntityTooLarge
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-5070"):
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}

// drain discards what is left of a rejected request body so the
// connection can be reused, up to a bound.
func drain(r *http.Request) {
	_, _ = io.CopyN(io.Discard, r.Body, 1<<20)
}
