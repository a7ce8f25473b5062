package storage

import (
	"errors"
	"iter"

	"github.com/twinisland/filebay/internal/core/domain"
)

// ErrReadOnly is returned by mutating calls inside View.
var ErrReadOnly = errors.New("storage: read-only transaction")

// Txn is the engine state as seen inside Update or View. It must not be
// retained after the callback returns.
type Txn struct {
	e        *Engine
	writable bool
}

// Get returns the record at id, tombstoned or not.
func (tx *Txn) Get(id uint64) (domain.FileRecord, bool) {
	return tx.e.store.Get(id)
}

// Scan yields every slot in creation order.
func (tx *Txn) Scan() iter.Seq2[uint64, domain.FileRecord] {
	return tx.e.store.Scan()
}

// Live returns the live-record count.
func (tx *Txn) Live() int {
	return tx.e.store.Live()
}

// NextID returns the id the next Append will assign.
func (tx *Txn) NextID() uint64 {
	return tx.e.store.NextID()
}

// Lookup resolves a capability code to a record id.
func (tx *Txn) Lookup(code domain.Code) (uint64, bool) {
	return tx.e.index.Lookup(code)
}

// Append stores rec and returns its id.
func (tx *Txn) Append(rec domain.FileRecord) (uint64, error) {
	if !tx.writable {
		return 0, ErrReadOnly
	}
	return tx.e.store.Append(rec), nil
}

// Insert maps code to id in the capability index. It returns
// memory.ErrCollision when the bucket is taken.
func (tx *Txn) Insert(code domain.Code, id uint64) error {
	if !tx.writable {
		return ErrReadOnly
	}
	return tx.e.index.Insert(code, id)
}

// Evict tombstones the record at id and removes its index entry if the
// entry still belongs to it. It reports whether the record was live.
func (tx *Txn) Evict(id uint64) (bool, error) {
	if !tx.writable {
		return false, ErrReadOnly
	}
	rec, ok := tx.e.store.Get(id)
	if !ok || rec.Deleted {
		return false, nil
	}
	tx.e.index.RemoveEntry(rec.Code, id)
	return tx.e.store.MarkDeleted(id), nil
}

// Reservation returns a copy of the pending reservation.
func (tx *Txn) Reservation() (domain.Reservation, bool) {
	if tx.e.reservation == nil {
		return domain.Reservation{}, false
	}
	return *tx.e.reservation, true
}

// SetReservation installs or replaces the pending reservation.
func (tx *Txn) SetReservation(r domain.Reservation) error {
	if !tx.writable {
		return ErrReadOnly
	}
	tx.e.reservation = &r
	return nil
}

// ClearReservation returns the engine to the idle state.
func (tx *Txn) ClearReservation() error {
	if !tx.writable {
		return ErrReadOnly
	}
	tx.e.reservation = nil
	return nil
}
