// Package blob stores file contents keyed by record id.
//
// A blob is written to a staging area by one or more Append calls and made
// visible by Commit. Staging blobs never show up in List and are dropped by
// Purge on startup.
package blob

import (
	"context"
	"errors"
	"io"
	"strconv"
)

var (
	// ErrNotFound indicates no committed blob exists for the id.
	ErrNotFound = errors.New("blob: not found")

	// ErrOffset indicates an append does not continue the staging blob.
	ErrOffset = errors.New("blob: offset does not match staged size")
)

// Backend is a blob store.
type Backend interface {
	// Append writes r to the staging blob for id starting at offset.
	// Offset 0 truncates any previous staging content.
	Append(ctx context.Context, id uint64, offset int64, r io.Reader) (int64, error)

	// Commit makes the staging blob for id readable by Open.
	Commit(ctx context.Context, id uint64) error

	// Open returns the committed blob and its size.
	Open(ctx context.Context, id uint64) (io.ReadCloser, int64, error)

	// Remove deletes committed and staging content for id.
	// A missing blob is not an error.
	Remove(ctx context.Context, id uint64) error

	// Rename moves a committed blob to a new id, replacing any existing one.
	Rename(ctx context.Context, from, to uint64) error

	// List returns the ids of all committed blobs.
	List(ctx context.Context) ([]uint64, error)

	// Purge deletes all staging blobs.
	Purge(ctx context.Context) error
}

// Key returns the object name of the blob for id.
func Key(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// ParseKey parses an object name produced by Key.
func ParseKey(name string) (uint64, bool) {
	if name == "" {
		return 0, false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < '0' || name[i] > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseUint(name, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, Key(id) == name
}
