// Package memory provides the in-memory record arena and capability index
// for FileBay.
//
// Neither structure is internally synchronized. The storage engine owns
// both behind a single lock and serializes every mutation.
package memory

import (
	"iter"

	"github.com/twinisland/filebay/internal/core/domain"
)

// DefaultChunkSize is the number of slots the store grows by.
const DefaultChunkSize = 5

// Store is an append-only arena of file records addressed by slot id.
// Deletion flips a tombstone; slots are never moved, shrunk or reused.
type Store struct {
	slots     []domain.FileRecord
	live      int
	chunkSize int
}

// Option configures the Store.
type Option func(*Store)

// WithChunkSize sets the growth increment in slots.
func WithChunkSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		chunkSize: DefaultChunkSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.slots = make([]domain.FileRecord, 0, s.chunkSize)
	return s
}

// Append stores rec at the next slot and returns its id.
// rec.ID and rec.Deleted are overwritten.
func (s *Store) Append(rec domain.FileRecord) uint64 {
	if len(s.slots) == cap(s.slots) {
		grown := make([]domain.FileRecord, len(s.slots), cap(s.slots)+s.chunkSize)
		copy(grown, s.slots)
		s.slots = grown
	}

	id := uint64(len(s.slots))
	rec.ID = id
	rec.Deleted = false
	s.slots = append(s.slots, rec)
	s.live++
	return id
}

// Get returns a copy of the record at id, tombstoned or not.
func (s *Store) Get(id uint64) (domain.FileRecord, bool) {
	if id >= uint64(len(s.slots)) {
		return domain.FileRecord{}, false
	}
	return s.slots[id], true
}

// Scan yields every slot in creation order, tombstones included.
// Each call starts a fresh pass over the current slots.
func (s *Store) Scan() iter.Seq2[uint64, domain.FileRecord] {
	return func(yield func(uint64, domain.FileRecord) bool) {
		for i := range s.slots {
			if !yield(uint64(i), s.slots[i]) {
				return
			}
		}
	}
}

// MarkDeleted tombstones the record at id. It reports whether the record
// was live before the call; repeated calls are no-ops.
func (s *Store) MarkDeleted(id uint64) bool {
	if id >= uint64(len(s.slots)) || s.slots[id].Deleted {
		return false
	}
	s.slots[id].Deleted = true
	s.live--
	return true
}

// Len returns the number of allocated slots.
func (s *Store) Len() int {
	return len(s.slots)
}

// Live returns the number of records not tombstoned.
func (s *Store) Live() int {
	return s.live
}

// NextID returns the id the next Append will assign.
func (s *Store) NextID() uint64 {
	return uint64(len(s.slots))
}

// Cap returns the allocated slot capacity.
func (s *Store) Cap() int {
	return cap(s.slots)
}
