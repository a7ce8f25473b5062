package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/twinisland/filebay/internal/core/domain"
	"github.com/twinisland/filebay/internal/storage"
	"github.com/twinisland/filebay/internal/telemetry/metric"
)

// SweeperConfig configures the expiry sweeper.
type SweeperConfig struct {
	// Interval between sweeps.
	Interval time.Duration

	// ReservationTimeout reclaims stalled reservations. Zero disables it.
	ReservationTimeout time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	Logger  *slog.Logger
	Metrics *metric.Registry
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Evicted     int
	BlobErrors  int
	Reclaimed   bool
	StartedAt   time.Time
	CompletedAt time.Time
}

// Sweeper periodically evicts expired records and their blobs.
type Sweeper struct {
	repo    Repository
	cfg     SweeperConfig
	logger  *slog.Logger
	metrics *metric.Registry

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewSweeper creates a sweeper. Call Run or Start to begin sweeping.
func NewSweeper(repo Repository, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metric.NewRegistry()
	}
	return &Sweeper{
		repo:    repo,
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start runs the sweep loop in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	go s.Run(ctx)
}

// Run sweeps immediately, then once per interval, until ctx is done or
// Stop is called.
func (s *Sweeper) Run(ctx context.Context) {
	defer close(s.doneCh)

	s.logger.Info("expiry sweeper started", "interval", s.cfg.Interval)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-s.stopCh:
			s.logger.Info("expiry sweeper stopped")
			return
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped", "reason", ctx.Err())
			return
		}
	}
}

// Stop signals the loop to exit and waits for it. Safe to call once Run
// has started, and more than once.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh
}

// Sweep evicts every live record expired at or before now. Blob deletion
// failures are logged and counted; the records stay evicted.
func (s *Sweeper) Sweep(ctx context.Context) SweepResult {
	res := SweepResult{StartedAt: s.cfg.Now()}
	now := res.StartedAt

	var evicted []uint64
	_ = s.repo.Update(func(tx *storage.Txn) error {
		for id, rec := range tx.Scan() {
			if !rec.IsLive() || !rec.IsExpired(now) {
				continue
			}
			if live, _ := tx.Evict(id); live {
				evicted = append(evicted, id)
			}
		}

		if cur, ok := tx.Reservation(); ok && cur.Stale(now, s.cfg.ReservationTimeout) {
			res.Reclaimed = s.reclaimLocked(ctx, tx, cur)
		}
		return nil
	})

	for _, id := range evicted {
		if err := s.repo.Blobs().Remove(ctx, id); err != nil {
			s.logger.Error("remove expired blob failed", "id", id, "error", err)
			res.BlobErrors++
		}
	}

	res.Evicted = len(evicted)
	res.CompletedAt = s.cfg.Now()

	s.metrics.SweepEvictions.Add(float64(res.Evicted))
	s.metrics.SweepBlobErrors.Add(float64(res.BlobErrors))
	s.metrics.SweepDuration.Observe(res.CompletedAt.Sub(res.StartedAt).Seconds())

	if res.Evicted > 0 || res.Reclaimed {
		s.logger.Info("sweep completed",
			"evicted", res.Evicted,
			"blob_errors", res.BlobErrors,
			"reclaimed_reservation", res.Reclaimed)
	}
	return res
}

// reclaimLocked drops a stalled reservation. Caller holds the engine lock.
func (s *Sweeper) reclaimLocked(ctx context.Context, tx *storage.Txn, r domain.Reservation) bool {
	if err := s.repo.Blobs().Remove(ctx, r.Standby.ID); err != nil {
		s.logger.Error("remove stalled upload blob failed", "id", r.Standby.ID, "error", err)
		return false
	}
	if err := tx.ClearReservation(); err != nil {
		return false
	}
	s.logger.Info("stalled upload reservation reclaimed",
		"idle", s.cfg.Now().Sub(r.TouchedAt).Round(time.Second))
	return true
}
