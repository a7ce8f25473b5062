package domain

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Capability code constraints.
const (
	// CodeMin is the smallest valid capability code.
	CodeMin = 100000

	// CodeSpan is the number of distinct capability codes.
	CodeSpan = 900000

	// CodeDigits is the printed length of a capability code.
	CodeDigits = 6

	// MaxNameLength bounds a stored filename in bytes.
	MaxNameLength = 4096

	// DefaultFileName replaces an empty or unusable filename at finalize.
	DefaultFileName = "file"
)

// Code is a 6-digit capability code. It doubles as the reservation token
// type, since both are drawn from the same range.
type Code uint32

// String returns the 6-digit decimal form.
func (c Code) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

// Valid reports whether c lies in the capability range.
func (c Code) Valid() bool {
	return c >= CodeMin && c < CodeMin+CodeSpan
}

// NewCode draws a code uniformly from the capability range.
func NewCode() (Code, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("generate code: %w", err)
	}
	// 2^64 mod 900000 bias is below 1e-13, acceptable for a 6-digit secret.
	n := binary.BigEndian.Uint64(b[:]) % CodeSpan
	return Code(CodeMin + n), nil
}

// ParseCode parses a 6-digit capability code.
func ParseCode(s string) (Code, error) {
	if len(s) != CodeDigits {
		return 0, ErrInvalidCode.WithDetails("code must be 6 digits")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, ErrInvalidCode.WithDetails("code must be numeric")
		}
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, ErrInvalidCode.WithCause(err)
	}
	c := Code(n)
	if !c.Valid() {
		return 0, ErrInvalidCode.WithDetails("code out of range")
	}
	return c, nil
}

// CodeGenerator produces capability codes and reservation tokens.
type CodeGenerator func() (Code, error)

// FileRecord is one stored file.
//
// ID is the slot index at creation and the blob key. It is never reused
// within a process lifetime; a record is live iff Deleted is false.
type FileRecord struct {
	ID        uint64    `json:"id"`
	Deleted   bool      `json:"-"`
	Name      string    `json:"name"`
	Size      uint64    `json:"size"`
	ExpiresAt time.Time `json:"expires_at"`
	Code      Code      `json:"-"`
}

// IsLive reports whether the record has not been tombstoned.
func (r *FileRecord) IsLive() bool {
	return !r.Deleted
}

// IsExpired reports whether the record expired at or before now.
func (r *FileRecord) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// SanitizeName strips directory components and control characters from a
// client-supplied filename.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return DefaultFileName
	}
	if len(name) > MaxNameLength {
		name = truncateUTF8(name, MaxNameLength)
	}
	return name
}

func truncateUTF8(s string, n int) string {
	for n > 0 && n < len(s) && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}

// ReservationState is the state of the upload session.
type ReservationState int

// Reservation states. Finalized and abandoned sessions return to StateIdle.
const (
	StateIdle ReservationState = iota
	StateReserved
	StateUploading
)

// String returns the state name.
func (s ReservationState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReserved:
		return "reserved"
	case StateUploading:
		return "uploading"
	default:
		return "unknown"
	}
}

// Reservation is the single in-flight upload session.
type Reservation struct {
	Token     Code
	Standby   FileRecord
	State     ReservationState
	Written   uint64
	InFlight  bool
	CreatedAt time.Time
	TouchedAt time.Time
}

// Stale reports whether the reservation has been idle longer than timeout.
// A zero timeout never goes stale, and an in-flight chunk is never stale.
func (r *Reservation) Stale(now time.Time, timeout time.Duration) bool {
	if timeout <= 0 || r.InFlight {
		return false
	}
	return now.Sub(r.TouchedAt) >= timeout
}
