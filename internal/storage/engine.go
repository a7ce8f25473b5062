package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/twinisland/filebay/internal/core/domain"
	"github.com/twinisland/filebay/internal/storage/blob"
	"github.com/twinisland/filebay/internal/storage/memory"
	"github.com/twinisland/filebay/internal/storage/snapshot"
)

// Config configures the storage engine.
type Config struct {
	// MaxLive is the live-record ceiling; it sizes the capability index.
	MaxLive int

	// ChunkSize is the record store growth increment.
	ChunkSize int

	// CheckpointInterval writes a snapshot periodically. Zero disables it;
	// the shutdown flush still runs.
	CheckpointInterval time.Duration

	// Logger is the structured logger.
	Logger *slog.Logger
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig(maxLive int) Config {
	return Config{
		MaxLive:   maxLive,
		ChunkSize: memory.DefaultChunkSize,
		Logger:    slog.Default(),
	}
}

// Engine owns the record store, the capability index and the upload
// reservation behind one lock. Every mutation goes through Update.
type Engine struct {
	cfg Config

	mu          sync.RWMutex
	store       *memory.Store
	index       *memory.Index
	reservation *domain.Reservation

	blobs    blob.Backend
	snapshot *snapshot.Manager

	logger *slog.Logger

	stopCh    chan struct{}
	doneCh    chan struct{}
	loopOnce  sync.Once
	closeOnce sync.Once
}

// New creates a storage engine.
//
// This does NOT perform recovery. Call Recover() after New() to load the
// snapshot and reconcile blobs. Periodic checkpoints start once Recover
// succeeds.
func New(cfg Config, blobs blob.Backend, snap *snapshot.Manager) (*Engine, error) {
	if cfg.MaxLive <= 0 {
		return nil, errors.New("storage: max_live must be positive")
	}
	if blobs == nil || snap == nil {
		return nil, errors.New("storage: blob backend and snapshot manager are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	e := &Engine{
		cfg:      cfg,
		store:    memory.New(memory.WithChunkSize(cfg.ChunkSize)),
		index:    memory.NewIndex(memory.BucketsFor(cfg.MaxLive)),
		blobs:    blobs,
		snapshot: snap,
		logger:   cfg.Logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	return e, nil
}

func (e *Engine) startCheckpoints() {
	e.loopOnce.Do(func() {
		if e.cfg.CheckpointInterval > 0 {
			go e.checkpointLoop()
			return
		}
		close(e.doneCh)
	})
}

// Update runs fn with exclusive access to the engine state.
func (e *Engine) Update(fn func(tx *Txn) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(&Txn{e: e, writable: true})
}

// View runs fn with shared, read-only access to the engine state.
func (e *Engine) View(fn func(tx *Txn) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fn(&Txn{e: e})
}

// Blobs returns the blob backend.
func (e *Engine) Blobs() blob.Backend {
	return e.blobs
}

// MaxLive returns the configured live-record ceiling.
func (e *Engine) MaxLive() int {
	return e.cfg.MaxLive
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Slots     int
	Allocated int
	Live      int
	Indexed   int
	Buckets   int
	Reserved  bool
}

// Stats returns current counters.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Slots:     e.store.Len(),
		Allocated: e.store.Cap(),
		Live:      e.store.Live(),
		Indexed:   e.index.Len(),
		Buckets:   e.index.Buckets(),
		Reserved:  e.reservation != nil,
	}
}

// RecoverStats summarizes a recovery run.
type RecoverStats struct {
	Loaded     int
	Skipped    int
	Renamed    int
	Collisions int
	Orphans    int
	Truncated  bool
}

// blobMove is a recovered record whose blob changes id.
type blobMove struct {
	from   uint64
	parked uint64
	to     uint64
}

// Recover loads the snapshot into the empty engine and reconciles blobs.
//
// Recovery process:
//  1. Load and fully decode the snapshot; a version mismatch aborts here
//  2. Drop staging blobs left by interrupted uploads
//  3. Re-append records in file order; a blob whose id changes is parked
//     above every existing blob id
//  4. Remove committed blobs no record claimed
//  5. Write the snapshot with the new ids, then move parked blobs into place
//
// A blob id named by the snapshot on disk holds that record's bytes or
// nothing at every step: parked ids are named by no snapshot, and a blob
// reaches its new id only after the snapshot naming that id is written.
func (e *Engine) Recover(ctx context.Context) (*RecoverStats, error) {
	startTime := time.Now()
	e.logger.Info("storage recovery started", "snapshot", e.snapshot.Path())

	// Step 1: Load snapshot
	records, info, err := e.snapshot.Load()
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	stats := &RecoverStats{Truncated: info.Truncated}
	if info.Truncated {
		e.logger.Warn("snapshot has unreadable trailing data, keeping parsed records",
			"records", len(records))
	}

	// Step 2: Drop staging blobs
	if err := e.blobs.Purge(ctx); err != nil {
		e.logger.Warn("purge staging blobs failed", "error", err)
	}

	present, err := e.blobs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	unclaimed := make(map[uint64]bool, len(present))
	var parkBase uint64
	for _, id := range present {
		unclaimed[id] = true
		parkBase = max(parkBase, id+1)
	}

	// Step 3: Re-append records
	var moves []blobMove
	e.mu.Lock()
	for _, rec := range records {
		oldID := rec.ID
		if !unclaimed[oldID] {
			e.logger.Warn("snapshot record has no blob, skipping",
				"id", oldID, "name", rec.Name)
			stats.Skipped++
			continue
		}
		delete(unclaimed, oldID)

		newID := e.store.NextID()
		if newID != oldID {
			parked := parkBase + newID
			if err := e.blobs.Rename(ctx, oldID, parked); err != nil {
				e.logger.Warn("park blob failed, skipping record",
					"id", oldID, "target_id", newID, "error", err)
				unclaimed[oldID] = true
				stats.Skipped++
				continue
			}
			moves = append(moves, blobMove{from: oldID, parked: parked, to: newID})
		}

		id := e.store.Append(rec)
		if err := e.index.Insert(rec.Code, id); err != nil {
			e.logger.Warn("capability index collision on reload",
				"id", id, "error", err)
			stats.Collisions++
		}
		stats.Loaded++
	}
	e.mu.Unlock()

	// Step 4: Remove orphans
	for id := range unclaimed {
		if err := e.blobs.Remove(ctx, id); err != nil {
			e.logger.Warn("remove orphan blob failed", "id", id, "error", err)
			continue
		}
		stats.Orphans++
	}

	// Step 5: Persist new ids, then unpark
	if len(moves) > 0 {
		if _, err := e.Flush(ctx); err != nil {
			e.unpark(ctx, moves)
			return nil, fmt.Errorf("write recovered snapshot: %w", err)
		}
		for _, m := range moves {
			if err := e.blobs.Rename(ctx, m.parked, m.to); err != nil {
				e.logger.Warn("move parked blob failed, dropping record",
					"id", m.to, "error", err)
				e.dropRecovered(ctx, m)
				stats.Loaded--
				stats.Skipped++
				continue
			}
			stats.Renamed++
		}
	}

	e.startCheckpoints()

	e.logger.Info("recovery completed",
		"loaded", stats.Loaded,
		"skipped", stats.Skipped,
		"renamed", stats.Renamed,
		"orphans", stats.Orphans,
		"collisions", stats.Collisions,
		"elapsed", time.Since(startTime))

	return stats, nil
}

// unpark returns parked blobs to the ids the snapshot on disk still names.
func (e *Engine) unpark(ctx context.Context, moves []blobMove) {
	for _, m := range moves {
		if err := e.blobs.Rename(ctx, m.parked, m.from); err != nil {
			e.logger.Warn("restore parked blob failed", "id", m.from, "error", err)
		}
	}
}

// dropRecovered evicts a recovered record whose blob could not be moved.
func (e *Engine) dropRecovered(ctx context.Context, m blobMove) {
	_ = e.Update(func(tx *Txn) error {
		_, err := tx.Evict(m.to)
		return err
	})
	if err := e.blobs.Remove(ctx, m.parked); err != nil {
		e.logger.Warn("remove parked blob failed", "id", m.parked, "error", err)
	}
}

// Flush writes every live record to the snapshot file.
func (e *Engine) Flush(_ context.Context) (*snapshot.Info, error) {
	var live []domain.FileRecord
	_ = e.View(func(tx *Txn) error {
		live = make([]domain.FileRecord, 0, tx.Live())
		for _, rec := range tx.Scan() {
			if rec.IsLive() {
				live = append(live, rec)
			}
		}
		return nil
	})

	info, err := e.snapshot.Save(slices.Values(live))
	if err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}

	e.logger.Info("snapshot written",
		"path", info.Path,
		"records", info.Records,
		"size_bytes", info.Size)
	return info, nil
}

// checkpointLoop runs periodic snapshot writes.
func (e *Engine) checkpointLoop() {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.cfg.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := e.Flush(context.Background()); err != nil {
				e.logger.Error("checkpoint failed", "error", err)
			}
		case <-e.stopCh:
			return
		}
	}
}

// Close stops background work. It does not flush; call Flush first.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.logger.Info("shutting down storage engine")
		e.loopOnce.Do(func() { close(e.doneCh) })
		close(e.stopCh)
		<-e.doneCh
	})
	return nil
}
