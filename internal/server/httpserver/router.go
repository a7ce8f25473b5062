package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/twinisland/filebay/internal/server/httpserver/handler"
	"github.com/twinisland/filebay/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	Uploads  handler.Uploads
	Notifier *Notifier
	Metrics  *metric.Registry
	Logger   *slog.Logger

	// MetricsEnabled exposes GET /metrics.
	MetricsEnabled bool

	// RateLimit is requests per second per client IP on apply and
	// download. Zero disables limiting.
	RateLimit float64
	RateBurst int

	// Ready reports readiness for /ready.
	Ready func() bool
}

// Router is the root handler. It owns the rate limiter state.
type Router struct {
	mux      *http.ServeMux
	limiters *limiterRegistry
}

// NewRouter creates and configures the HTTP router with all routes and
// middleware.
func NewRouter(cfg *RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metric.NewRegistry()
	}
	hcfg := handler.Config{
		Uploads: cfg.Uploads,
		Logger:  cfg.Logger,
		Ready:   cfg.Ready,
	}
	if cfg.Notifier != nil {
		hcfg.Status = cfg.Notifier
	}
	if cfg.MetricsEnabled {
		hcfg.Metrics = cfg.Metrics.Handler()
	}
	h := handler.New(hcfg)

	rt := &Router{mux: http.NewServeMux()}
	if cfg.RateLimit > 0 {
		rt.limiters = newLimiterRegistry(cfg.RateLimit, cfg.RateBurst)
	}

	// Order: Recover -> RequestID -> Metrics -> Audit -> RateLimit -> Handler
	for _, route := range h.Routes() {
		mws := []Middleware{
			Recover(cfg.Logger),
			RequestID(cfg.Logger),
			Metrics(cfg.Metrics),
			Audit(),
		}
		if route.Limited && rt.limiters != nil {
			mws = append(mws, RateLimit(rt.limiters))
		}
		rt.mux.Handle(route.Pattern, Chain(route.Handler, mws...))
	}
	return rt
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

// PruneLimiters drops idle per-client buckets every interval until ctx is
// done.
func (rt *Router) PruneLimiters(ctx context.Context, interval time.Duration) {
	if rt.limiters == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rt.limiters.prune()
		case <-ctx.Done():
			return
		}
	}
}

var _ http.Handler = (*Router)(nil)
