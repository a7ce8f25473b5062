// Package service provides domain services for FileBay.
//
// UploadService runs the reservation state machine (apply, upload,
// finalize, abandon) and serves downloads. Sweeper evicts expired records.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/twinisland/filebay/internal/core/domain"
	"github.com/twinisland/filebay/internal/storage"
	"github.com/twinisland/filebay/internal/storage/blob"
	"github.com/twinisland/filebay/internal/storage/memory"
	"github.com/twinisland/filebay/internal/telemetry/metric"
)

// Repository is the storage the services run against.
type Repository interface {
	// Update runs fn with exclusive access to records, index and reservation.
	Update(fn func(tx *storage.Txn) error) error

	// View runs fn with shared read-only access.
	View(fn func(tx *storage.Txn) error) error

	// Blobs returns the blob backend.
	Blobs() blob.Backend
}

// UploadConfig configures the UploadService.
type UploadConfig struct {
	MaxBytes           uint64
	TTL                time.Duration
	MaxLive            int
	ReservationTimeout time.Duration

	// NewCode generates capability codes. Defaults to domain.NewCode.
	NewCode domain.CodeGenerator

	// NewToken generates reservation tokens. Defaults to domain.NewCode.
	NewToken domain.CodeGenerator

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	Logger  *slog.Logger
	Metrics *metric.Registry
}

// UploadService handles the upload session and downloads.
type UploadService struct {
	repo    Repository
	cfg     UploadConfig
	logger  *slog.Logger
	metrics *metric.Registry
}

// NewUploadService creates a new UploadService.
func NewUploadService(repo Repository, cfg UploadConfig) (*UploadService, error) {
	if cfg.MaxBytes == 0 || cfg.TTL <= 0 || cfg.MaxLive <= 0 {
		return nil, errors.New("service: max_bytes, ttl and max_live must be positive")
	}
	if cfg.NewCode == nil {
		cfg.NewCode = domain.NewCode
	}
	if cfg.NewToken == nil {
		cfg.NewToken = domain.NewCode
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

	return &UploadService{
		repo:    repo,
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// ============================================================================
// Apply
// ============================================================================

// ApplyResponse contains the reservation token.
type ApplyResponse struct {
	Token     string
	ExpiresAt time.Time
}

// Apply reserves the single upload slot.
func (s *UploadService) Apply(ctx context.Context) (*ApplyResponse, error) {
	token, err := s.cfg.NewToken()
	if err != nil {
		return nil, domain.ErrInternal.WithCause(err)
	}
	now := s.cfg.Now()

	var resp *ApplyResponse
	err = s.repo.Update(func(tx *storage.Txn) error {
		// 1. Reclaim a stalled reservation, else refuse
		if cur, ok := tx.Reservation(); ok {
			if !cur.Stale(now, s.cfg.ReservationTimeout) {
				return domain.ErrBusy
			}
			if err := s.abandonLocked(ctx, tx, cur, "reservation timed out"); err != nil {
				return err
			}
		}

		// 2. Standby record takes the next slot id
		standby := domain.FileRecord{
			ID:        tx.NextID(),
			ExpiresAt: now.Add(s.cfg.TTL),
		}

		// 3. Install reservation
		if err := tx.SetReservation(domain.Reservation{
			Token:     token,
			Standby:   standby,
			State:     domain.StateReserved,
			CreatedAt: now,
			TouchedAt: now,
		}); err != nil {
			return err
		}

		resp = &ApplyResponse{Token: token.String(), ExpiresAt: standby.ExpiresAt}
		return nil
	})
	if err != nil {
		s.metrics.Reservations.WithLabelValues(resultLabel(err)).Inc()
		return nil, err
	}

	s.metrics.Reservations.WithLabelValues("ok").Inc()
	s.logger.Debug("upload slot reserved", "expires_at", resp.ExpiresAt)
	return resp, nil
}

// ============================================================================
// Upload
// ============================================================================

// UploadRequest carries one chunk of the upload.
type UploadRequest struct {
	Token  string
	Offset uint64
	Body   io.Reader
}

// UploadResponse reports the cumulative bytes written.
type UploadResponse struct {
	Written uint64
}

// Upload appends Body to the staging blob at Offset. Offset 0 restarts the
// blob; any other offset must equal the bytes written so far.
func (s *UploadService) Upload(ctx context.Context, req *UploadRequest) (*UploadResponse, error) {
	token, err := parseToken(req.Token)
	if err != nil {
		return nil, err
	}

	// 1. Claim the reservation for this chunk
	var res domain.Reservation
	err = s.repo.Update(func(tx *storage.Txn) error {
		cur, err := s.owned(tx, token)
		if err != nil {
			return err
		}
		if req.Offset != 0 && req.Offset != cur.Written {
			return domain.ErrInvalidOffset.WithDetails(
				fmt.Sprintf("offset %d, written %d", req.Offset, cur.Written))
		}
		if tx.Live() >= s.cfg.MaxLive {
			if err := s.abandonLocked(ctx, tx, cur, "capacity exceeded"); err != nil {
				return err
			}
			return domain.ErrCapacityExceeded
		}

		cur.InFlight = true
		cur.State = domain.StateUploading
		cur.TouchedAt = s.cfg.Now()
		res = cur
		return tx.SetReservation(cur)
	})
	if err != nil {
		s.countUploadFailure(err)
		return nil, err
	}

	// 2. Stream outside the lock; the in-flight flag keeps everyone else off
	remaining := s.cfg.MaxBytes - req.Offset
	limited := io.LimitReader(req.Body, int64(remaining)+1)
	n, err := s.repo.Blobs().Append(ctx, res.Standby.ID, int64(req.Offset), limited)
	if err != nil {
		s.abandonOwned(ctx, res, "write failed")
		err = domain.ErrStorageIO.WithCause(err)
		s.countUploadFailure(err)
		return nil, err
	}
	if uint64(n) > remaining {
		s.abandonOwned(ctx, res, "size limit exceeded")
		err = domain.ErrTooLarge.WithDetails(fmt.Sprintf("limit %d bytes", s.cfg.MaxBytes))
		s.countUploadFailure(err)
		return nil, err
	}
	s.metrics.UploadBytes.Add(float64(n))

	// 3. Record progress and release the chunk claim
	written := req.Offset + uint64(n)
	err = s.repo.Update(func(tx *storage.Txn) error {
		cur, ok := tx.Reservation()
		if !ok || cur.Token != token {
			return domain.ErrInternal.WithDetails("reservation lost during upload")
		}
		cur.InFlight = false
		cur.Written = written
		cur.TouchedAt = s.cfg.Now()
		return tx.SetReservation(cur)
	})
	if err != nil {
		return nil, err
	}

	return &UploadResponse{Written: written}, nil
}

// ============================================================================
// Finalize
// ============================================================================

// FinalizeRequest names the uploaded file.
type FinalizeRequest struct {
	Token string
	Name  string
}

// FinalizeResponse contains the capability code for the stored file.
type FinalizeResponse struct {
	Code      string
	Name      string
	Size      uint64
	ExpiresAt time.Time

	// Indexed is false when the code collided with an existing entry and
	// the record cannot be found by code.
	Indexed bool
}

// Finalize commits the uploaded blob as a new record and releases the
// reservation. An upload with no chunks stores an empty file.
func (s *UploadService) Finalize(ctx context.Context, req *FinalizeRequest) (*FinalizeResponse, error) {
	token, err := parseToken(req.Token)
	if err != nil {
		return nil, err
	}
	code, err := s.cfg.NewCode()
	if err != nil {
		return nil, domain.ErrInternal.WithCause(err)
	}

	// 1. Validate and claim
	var res domain.Reservation
	err = s.repo.Update(func(tx *storage.Txn) error {
		cur, err := s.owned(tx, token)
		if err != nil {
			return err
		}
		if tx.Live() >= s.cfg.MaxLive {
			if err := s.abandonLocked(ctx, tx, cur, "capacity exceeded"); err != nil {
				return err
			}
			return domain.ErrCapacityExceeded
		}
		cur.InFlight = true
		cur.TouchedAt = s.cfg.Now()
		res = cur
		return tx.SetReservation(cur)
	})
	if err != nil {
		s.countUploadFailure(err)
		return nil, err
	}

	// 2. Commit the blob outside the lock
	if err := s.repo.Blobs().Commit(ctx, res.Standby.ID); err != nil {
		s.abandonOwned(ctx, res, "commit failed")
		err = domain.ErrStorageIO.WithCause(err)
		s.countUploadFailure(err)
		return nil, err
	}

	// 3. Publish the record
	rec := res.Standby
	rec.Name = domain.SanitizeName(req.Name)
	rec.Size = res.Written
	rec.Code = code

	resp := &FinalizeResponse{
		Code:      code.String(),
		Name:      rec.Name,
		Size:      rec.Size,
		ExpiresAt: rec.ExpiresAt,
		Indexed:   true,
	}
	err = s.repo.Update(func(tx *storage.Txn) error {
		if next := tx.NextID(); next != rec.ID {
			return domain.ErrInternal.WithDetails(
				fmt.Sprintf("standby id %d, next slot %d", rec.ID, next))
		}
		id, err := tx.Append(rec)
		if err != nil {
			return err
		}
		if err := tx.Insert(code, id); err != nil {
			if !errors.Is(err, memory.ErrCollision) {
				return err
			}
			resp.Indexed = false
		}
		return tx.ClearReservation()
	})
	if err != nil {
		s.abandonOwned(ctx, res, "publish failed")
		s.countUploadFailure(err)
		return nil, err
	}

	if !resp.Indexed {
		s.metrics.IndexCollision.Inc()
		s.logger.Warn("capability index collision, record unreachable by code",
			"id", rec.ID)
	}
	s.metrics.UploadsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("file stored",
		"id", rec.ID,
		"size", rec.Size,
		"expires_at", rec.ExpiresAt)
	return resp, nil
}

// ============================================================================
// Abandon
// ============================================================================

// Abandon discards the reservation and any partial blob.
func (s *UploadService) Abandon(ctx context.Context, tokenStr string) error {
	token, err := parseToken(tokenStr)
	if err != nil {
		return err
	}

	err = s.repo.Update(func(tx *storage.Txn) error {
		cur, err := s.owned(tx, token)
		if err != nil {
			return err
		}
		return s.abandonLocked(ctx, tx, cur, "abandoned by client")
	})
	if err != nil {
		return err
	}
	s.metrics.UploadsTotal.WithLabelValues("abandoned").Inc()
	return nil
}

// ============================================================================
// Download
// ============================================================================

// DownloadResponse streams a stored file. Callers must close Body.
type DownloadResponse struct {
	Name      string
	Size      int64
	ExpiresAt time.Time
	Body      io.ReadCloser
}

// Download resolves a capability code and opens its blob.
func (s *UploadService) Download(ctx context.Context, codeStr string) (*DownloadResponse, error) {
	code, err := domain.ParseCode(codeStr)
	if err != nil {
		s.metrics.DownloadsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	now := s.cfg.Now()
	var rec domain.FileRecord
	err = s.repo.View(func(tx *storage.Txn) error {
		id, ok := tx.Lookup(code)
		if !ok {
			return domain.ErrFileNotFound
		}
		r, ok := tx.Get(id)
		if !ok || !r.IsLive() || r.IsExpired(now) {
			return domain.ErrFileNotFound
		}
		rec = r
		return nil
	})
	if err != nil {
		s.metrics.DownloadsTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}

	body, size, err := s.repo.Blobs().Open(ctx, rec.ID)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			s.metrics.DownloadsTotal.WithLabelValues("not_found").Inc()
			return nil, domain.ErrFileNotFound
		}
		s.metrics.DownloadsTotal.WithLabelValues("error").Inc()
		return nil, domain.ErrStorageIO.WithCause(err)
	}

	s.metrics.DownloadsTotal.WithLabelValues("ok").Inc()
	return &DownloadResponse{
		Name:      rec.Name,
		Size:      size,
		ExpiresAt: rec.ExpiresAt,
		Body:      body,
	}, nil
}

// ============================================================================
// Status
// ============================================================================

// Status reports whether a new upload would be accepted.
type Status struct {
	Accepting bool `json:"accepting"`
	Reserved  bool `json:"reserved"`
	Live      int  `json:"live"`
	Capacity  int  `json:"capacity"`
}

// Status returns the current upload availability.
func (s *UploadService) Status(_ context.Context) Status {
	now := s.cfg.Now()
	var st Status
	_ = s.repo.View(func(tx *storage.Txn) error {
		cur, ok := tx.Reservation()
		st.Reserved = ok && !cur.Stale(now, s.cfg.ReservationTimeout)
		st.Live = tx.Live()
		return nil
	})
	st.Capacity = s.cfg.MaxLive
	st.Accepting = !st.Reserved && st.Live < st.Capacity
	return st
}

// Limits are the client-visible upload constraints.
type Limits struct {
	MaxBytes uint64
	TTL      time.Duration
}

// Limits returns the configured upload limits.
func (s *UploadService) Limits() Limits {
	return Limits{MaxBytes: s.cfg.MaxBytes, TTL: s.cfg.TTL}
}

// ============================================================================
// helpers
// ============================================================================

func parseToken(s string) (domain.Code, error) {
	token, err := domain.ParseCode(s)
	if err != nil {
		return 0, domain.ErrBadToken
	}
	return token, nil
}

// owned returns the reservation if token holds it and no chunk is in flight.
func (s *UploadService) owned(tx *storage.Txn, token domain.Code) (domain.Reservation, error) {
	cur, ok := tx.Reservation()
	if !ok || cur.Token != token {
		return domain.Reservation{}, domain.ErrBadToken
	}
	if cur.InFlight {
		return domain.Reservation{}, domain.ErrBusy.WithDetails("upload in progress")
	}
	return cur, nil
}

// abandonLocked deletes the partial blob and clears the reservation.
// Caller holds the engine lock.
func (s *UploadService) abandonLocked(ctx context.Context, tx *storage.Txn, r domain.Reservation, reason string) error {
	if err := s.repo.Blobs().Remove(ctx, r.Standby.ID); err != nil {
		s.logger.Error("remove partial blob failed", "id", r.Standby.ID, "error", err)
		return domain.ErrStorageIO.WithCause(err)
	}
	s.logger.Info("upload reservation released", "reason", reason, "written", r.Written)
	return tx.ClearReservation()
}

// abandonOwned releases a reservation claimed with InFlight. The blob is
// removed before the slot is freed so a new session cannot reuse it early.
func (s *UploadService) abandonOwned(ctx context.Context, r domain.Reservation, reason string) {
	if err := s.repo.Blobs().Remove(ctx, r.Standby.ID); err != nil {
		s.logger.Error("remove partial blob failed", "id", r.Standby.ID, "error", err)
	}
	_ = s.repo.Update(func(tx *storage.Txn) error {
		cur, ok := tx.Reservation()
		if ok && cur.Token == r.Token {
			return tx.ClearReservation()
		}
		return nil
	})
	s.logger.Info("upload reservation released", "reason", reason, "written", r.Written)
}

func (s *UploadService) countUploadFailure(err error) {
	s.metrics.UploadsTotal.WithLabelValues(resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrBusy):
		return "busy"
	case errors.Is(err, domain.ErrBadToken):
		return "bad_token"
	case errors.Is(err, domain.ErrCapacityExceeded):
		return "capacity"
	case errors.Is(err, domain.ErrTooLarge):
		return "too_large"
	case errors.Is(err, domain.ErrInvalidOffset):
		return "bad_offset"
	case errors.Is(err, domain.ErrStorageIO):
		return "storage_error"
	default:
		return "error"
	}
}
