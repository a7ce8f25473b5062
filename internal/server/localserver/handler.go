package localserver

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/twinisland/filebay/internal/core/service"
	"github.com/twinisland/filebay/internal/storage"
	"github.com/twinisland/filebay/internal/storage/snapshot"
	"github.com/twinisland/filebay/internal/telemetry/logger"
)

// Engine is the storage surface the admin socket uses.
type Engine interface {
	Stats() storage.Stats
	MaxLive() int
	Flush(ctx context.Context) (*snapshot.Info, error)
}

// Sweeper runs an on-demand sweep.
type Sweeper interface {
	Sweep(ctx context.Context) service.SweepResult
}

// Watchers reports on the busy-status notifier.
type Watchers interface {
	Busy() bool
	Subscribers() int
}

// Handler handles admin commands.
type Handler struct {
	engine   Engine
	sweeper  Sweeper
	watchers Watchers
	shutdown func()
	started  time.Time
}

// NewHandler creates a Handler. watchers may be nil, which leaves the
// notifier fields out of status. shutdown may be nil, which disables the
// shutdown command.
func NewHandler(engine Engine, sweeper Sweeper, watchers Watchers, shutdown func()) *Handler {
	return &Handler{
		engine:   engine,
		sweeper:  sweeper,
		watchers: watchers,
		shutdown: shutdown,
		started:  time.Now(),
	}
}

// Execute runs one command line and writes a single reply line.
func (h *Handler) Execute(ctx context.Context, w io.Writer, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	var (
		reply string
		err   error
	)
	switch cmd {
	case "status":
		reply = h.status()
	case "flush":
		reply, err = h.flush(ctx)
	case "sweep":
		reply = h.sweep(ctx)
	case "loglevel":
		reply, err = h.logLevel(args)
	case "shutdown":
		reply, err = h.triggerShutdown()
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		_, werr := fmt.Fprintf(w, "ERR %v\n", err)
		return werr
	}
	_, werr := fmt.Fprintf(w, "OK %s\n", reply)
	return werr
}

func (h *Handler) status() string {
	st := h.engine.Stats()
	reply := fmt.Sprintf("slots=%d allocated=%d live=%d capacity=%d indexed=%d buckets=%d reserved=%t",
		st.Slots, st.Allocated, st.Live, h.engine.MaxLive(), st.Indexed, st.Buckets, st.Reserved)
	if h.watchers != nil {
		reply += fmt.Sprintf(" busy=%t watchers=%d", h.watchers.Busy(), h.watchers.Subscribers())
	}
	return reply + " uptime=" + time.Since(h.started).Round(time.Second).String()
}

func (h *Handler) flush(ctx context.Context) (string, error) {
	info, err := h.engine.Flush(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("records=%d bytes=%d path=%s", info.Records, info.Size, info.Path), nil
}

func (h *Handler) sweep(ctx context.Context) string {
	res := h.sweeper.Sweep(ctx)
	return fmt.Sprintf("evicted=%d blob_errors=%d reclaimed=%t", res.Evicted, res.BlobErrors, res.Reclaimed)
}

func (h *Handler) logLevel(args []string) (string, error) {
	switch len(args) {
	case 0:
		return "level=" + logger.Level(), nil
	case 1:
		if err := logger.SetLevel(args[0]); err != nil {
			return "", fmt.Errorf("unknown level %q", args[0])
		}
		return "level=" + logger.Level(), nil
	default:
		return "", fmt.Errorf("usage: loglevel [debug|info|warn|error]")
	}
}

func (h *Handler) triggerShutdown() (string, error) {
	if h.shutdown == nil {
		return "", fmt.Errorf("shutdown not available")
	}
	h.shutdown()
	return "shutting down", nil
}
