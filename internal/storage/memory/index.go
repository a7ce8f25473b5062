package memory

import (
	"errors"

	"github.com/twinisland/filebay/internal/core/domain"
)

// MinBuckets is the smallest bucket count an index is built with.
const MinBuckets = 256

// ErrCollision is returned by Insert when the target bucket is occupied.
var ErrCollision = errors.New("memory: index bucket occupied")

type entry struct {
	code domain.Code
	id   uint64
	used bool
}

// Index maps capability codes to record ids in a fixed number of buckets.
//
// One entry per bucket, no chaining, no probing. An insert into an occupied
// bucket is rejected and the record stays unreachable by code.
type Index struct {
	buckets []entry
	n       int
}

// NewIndex creates an index with the given bucket count, at least MinBuckets.
func NewIndex(buckets int) *Index {
	if buckets < MinBuckets {
		buckets = MinBuckets
	}
	return &Index{buckets: make([]entry, buckets)}
}

// BucketsFor returns the bucket count used for a live-record ceiling:
// the next power of two at or above 4*maxLive, never below MinBuckets.
func BucketsFor(maxLive int) int {
	want := 4 * maxLive
	n := MinBuckets
	for n < want {
		n <<= 1
	}
	return n
}

// mix is a reversible 32-bit integer mixer.
func mix(x uint32) uint32 {
	x = ((x >> 16) ^ x) * 0x45d9f3b
	x = ((x >> 16) ^ x) * 0x45d9f3b
	x = (x >> 16) ^ x
	return x
}

func (ix *Index) bucket(code domain.Code) int {
	return int(mix(uint32(code)) % uint32(len(ix.buckets)))
}

// Insert maps code to id. It returns ErrCollision if the bucket is taken,
// including by the same code.
func (ix *Index) Insert(code domain.Code, id uint64) error {
	b := &ix.buckets[ix.bucket(code)]
	if b.used {
		return ErrCollision
	}
	*b = entry{code: code, id: id, used: true}
	ix.n++
	return nil
}

// Lookup returns the id mapped to code.
func (ix *Index) Lookup(code domain.Code) (uint64, bool) {
	b := ix.buckets[ix.bucket(code)]
	if !b.used || b.code != code {
		return 0, false
	}
	return b.id, true
}

// Remove clears code's bucket if it still holds code.
func (ix *Index) Remove(code domain.Code) bool {
	b := &ix.buckets[ix.bucket(code)]
	if !b.used || b.code != code {
		return false
	}
	*b = entry{}
	ix.n--
	return true
}

// RemoveEntry clears code's bucket only if it holds code for id.
// A collided-away record sharing a code with the indexed one leaves it intact.
func (ix *Index) RemoveEntry(code domain.Code, id uint64) bool {
	b := &ix.buckets[ix.bucket(code)]
	if !b.used || b.code != code || b.id != id {
		return false
	}
	*b = entry{}
	ix.n--
	return true
}

// Len returns the number of occupied buckets.
func (ix *Index) Len() int {
	return ix.n
}

// Buckets returns the fixed bucket count.
func (ix *Index) Buckets() int {
	return len(ix.buckets)
}
