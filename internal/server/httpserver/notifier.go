package httpserver

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// BusyFunc reports whether new uploads are currently refused.
type BusyFunc func(ctx context.Context) bool

// Notifier samples the busy bit every interval and fans it out to
// subscribers. Each subscriber channel holds the latest value only; a slow
// reader skips ticks rather than blocking the others.
type Notifier struct {
	busy     BusyFunc
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	subs   map[uuid.UUID]chan bool
	closed bool

	last atomic.Bool

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewNotifier creates a notifier. Call Start to begin sampling.
func NewNotifier(busy BusyFunc, interval time.Duration, logger *slog.Logger) *Notifier {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		busy:     busy,
		interval: interval,
		logger:   logger,
		subs:     make(map[uuid.UUID]chan bool),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Subscribe registers a subscriber. The channel is closed when the
// notifier stops or the subscriber unsubscribes.
func (n *Notifier) Subscribe() (uuid.UUID, <-chan bool) {
	id := uuid.New()
	ch := make(chan bool, 1)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		close(ch)
		return id, ch
	}
	n.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber. Unknown ids are ignored.
func (n *Notifier) Unsubscribe(id uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ch, ok := n.subs[id]; ok {
		delete(n.subs, id)
		close(ch)
	}
}

// Subscribers returns the number of active subscribers.
func (n *Notifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Busy returns the most recently sampled value.
func (n *Notifier) Busy() bool {
	return n.last.Load()
}

// Start runs the sampling loop in a goroutine.
func (n *Notifier) Start(ctx context.Context) {
	go n.run(ctx)
}

func (n *Notifier) run(ctx context.Context) {
	defer close(n.doneCh)
	defer n.closeAll()

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.Publish(n.busy(ctx))
		case <-n.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Publish sends busy to every subscriber, replacing any value it has not
// read yet.
func (n *Notifier) Publish(busy bool) {
	n.last.Store(busy)

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case <-ch:
		default:
		}
		ch <- busy
	}
}

// Stop ends the loop and closes every subscriber channel. Only valid after
// Start; extra calls are no-ops.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() { close(n.stopCh) })
	<-n.doneCh
}

func (n *Notifier) closeAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
	n.closed = true
	n.logger.Info("status notifier stopped")
}
