// Package snapshot provides the binary snapshot format for FileBay records
// and an atomic file manager around it.
//
// Layout (big-endian):
//
//	version u8
//	repeated:
//	  id u64 | deleted u8 | size u64 | expires_unix i64 | code u32 | name_len u32 | name
//
// Only live records are written. A reader stops at the first truncated or
// malformed record and keeps everything parsed before it.
package snapshot

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/twinisland/filebay/internal/core/domain"
)

// FormatVersion is the on-disk format written by this build.
const FormatVersion byte = 3

// MaxNameLen bounds the encoded filename length.
const MaxNameLen = domain.MaxNameLength

// fixed part of a record: id, deleted, size, expires, code, name_len
const recordHeaderSize = 8 + 1 + 8 + 8 + 4 + 4

var (
	// ErrVersionMismatch indicates a snapshot written by another format version.
	ErrVersionMismatch = errors.New("snapshot: format version mismatch")

	// ErrNameTooLong indicates a record name exceeds MaxNameLen.
	ErrNameTooLong = errors.New("snapshot: name too long")
)

// Result is the outcome of decoding a snapshot stream.
type Result struct {
	// Version is the version byte read, 0 for an empty stream.
	Version byte

	// Records holds the decoded live records in file order. Their ID is
	// the id they had when the snapshot was written.
	Records []domain.FileRecord

	// Truncated is set when trailing bytes could not be parsed.
	Truncated bool
}

// Encode writes the version tag and every live record from records.
// It returns the number of records written.
func Encode(w io.Writer, records iter.Seq[domain.FileRecord]) (int, error) {
	bw := bufio.NewWriter(w)
	if err := bw.WriteByte(FormatVersion); err != nil {
		return 0, fmt.Errorf("snapshot: write version: %w", err)
	}

	var hdr [recordHeaderSize]byte
	n := 0
	for rec := range records {
		if rec.Deleted {
			continue
		}
		if len(rec.Name) > MaxNameLen {
			return n, fmt.Errorf("%w: record %d", ErrNameTooLong, rec.ID)
		}

		binary.BigEndian.PutUint64(hdr[0:8], rec.ID)
		hdr[8] = 0
		binary.BigEndian.PutUint64(hdr[9:17], rec.Size)
		binary.BigEndian.PutUint64(hdr[17:25], uint64(rec.ExpiresAt.Unix()))
		binary.BigEndian.PutUint32(hdr[25:29], uint32(rec.Code))
		binary.BigEndian.PutUint32(hdr[29:33], uint32(len(rec.Name)))

		if _, err := bw.Write(hdr[:]); err != nil {
			return n, fmt.Errorf("snapshot: write record: %w", err)
		}
		if _, err := bw.WriteString(rec.Name); err != nil {
			return n, fmt.Errorf("snapshot: write name: %w", err)
		}
		n++
	}

	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("snapshot: flush: %w", err)
	}
	return n, nil
}

// Decode reads a snapshot stream. An empty stream yields an empty result.
// A version other than FormatVersion yields ErrVersionMismatch and no records.
func Decode(r io.Reader) (*Result, error) {
	br := bufio.NewReader(r)
	res := &Result{}

	version, err := br.ReadByte()
	if errors.Is(err, io.EOF) {
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: read version: %w", err)
	}
	res.Version = version
	if version != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, version, FormatVersion)
	}

	var hdr [recordHeaderSize]byte
	for {
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return res, nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				res.Truncated = true
				return res, nil
			}
			return nil, fmt.Errorf("snapshot: read record: %w", err)
		}

		deleted := hdr[8]
		nameLen := binary.BigEndian.Uint32(hdr[29:33])
		if deleted > 1 || nameLen > MaxNameLen {
			res.Truncated = true
			return res, nil
		}

		name := make([]byte, nameLen)
		if _, err := io.ReadFull(br, name); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				res.Truncated = true
				return res, nil
			}
			return nil, fmt.Errorf("snapshot: read name: %w", err)
		}

		if deleted == 1 {
			continue
		}
		res.Records = append(res.Records, domain.FileRecord{
			ID:        binary.BigEndian.Uint64(hdr[0:8]),
			Size:      binary.BigEndian.Uint64(hdr[9:17]),
			ExpiresAt: time.Unix(int64(binary.BigEndian.Uint64(hdr[17:25])), 0),
			Code:      domain.Code(binary.BigEndian.Uint32(hdr[25:29])),
			Name:      string(name),
		})
	}
}
