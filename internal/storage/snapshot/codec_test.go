package snapshot

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/twinisland/filebay/internal/core/domain"
)

func sampleRecords() []domain.FileRecord {
	exp := time.Unix(1_900_000_000, 0)
	return []domain.FileRecord{
		{ID: 0, Name: "a.txt", Size: 10, ExpiresAt: exp, Code: 111111},
		{ID: 1, Name: "gone.bin", Size: 5, ExpiresAt: exp, Code: 222222, Deleted: true},
		{ID: 2, Name: "ünïcode name.pdf", Size: 0, ExpiresAt: exp.Add(time.Minute), Code: 333333},
	}
}

func TestEncodeDecode_SkipsTombstones(t *testing.T) {
	var buf bytes.Buffer
	n, err := Encode(&buf, slices.Values(sampleRecords()))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if n != 2 {
		t.Fatalf("Encode wrote %d records, want 2", n)
	}
	if buf.Bytes()[0] != FormatVersion {
		t.Fatalf("version byte = %d, want %d", buf.Bytes()[0], FormatVersion)
	}

	res, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if res.Truncated {
		t.Fatal("Decode reported truncation on a clean stream")
	}
	if len(res.Records) != 2 {
		t.Fatalf("len(Records) = %d, want 2", len(res.Records))
	}

	got := res.Records[1]
	if got.ID != 2 || got.Name != "ünïcode name.pdf" || got.Code != 333333 {
		t.Fatalf("record = %+v", got)
	}
	if !got.ExpiresAt.Equal(time.Unix(1_900_000_060, 0)) {
		t.Fatalf("ExpiresAt = %v", got.ExpiresAt)
	}
}

func TestDecode_EmptyStream(t *testing.T) {
	res, err := Decode(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("Decode(empty): %v", err)
	}
	if res.Version != 0 || len(res.Records) != 0 {
		t.Fatalf("Decode(empty) = %+v, want zero result", res)
	}
}

func TestDecode_VersionMismatch(t *testing.T) {
	var buf bytes.Buffer
	_, _ = Encode(&buf, slices.Values(sampleRecords()))
	raw := buf.Bytes()
	raw[0] = FormatVersion + 1

	res, err := Decode(bytes.NewReader(raw))
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("Decode error = %v, want ErrVersionMismatch", err)
	}
	if res != nil {
		t.Fatalf("Decode returned %+v alongside a version error", res)
	}
}

func TestDecode_TruncatedTail(t *testing.T) {
	var buf bytes.Buffer
	_, _ = Encode(&buf, slices.Values(sampleRecords()))
	full := buf.Bytes()

	tests := []struct {
		name string
		cut  int
		want int
	}{
		{"inside second header", len(full) - len("ünïcode name.pdf") - 5, 1},
		{"inside second name", len(full) - 3, 1},
		{"one byte after version", 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Decode(bytes.NewReader(full[:tt.cut]))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !res.Truncated {
				t.Fatal("Truncated = false, want true")
			}
			if len(res.Records) != tt.want {
				t.Fatalf("len(Records) = %d, want %d", len(res.Records), tt.want)
			}
		})
	}
}

func TestDecode_OversizedNameStops(t *testing.T) {
	var buf bytes.Buffer
	_, _ = Encode(&buf, slices.Values(sampleRecords()[:1]))
	raw := buf.Bytes()
	// corrupt the name length of the only record
	raw[1+29] = 0xFF

	res, err := Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !res.Truncated || len(res.Records) != 0 {
		t.Fatalf("Decode = %+v, want truncated with no records", res)
	}
}

func TestEncode_NameTooLong(t *testing.T) {
	recs := []domain.FileRecord{{Name: strings.Repeat("x", MaxNameLen+1)}}
	if _, err := Encode(&bytes.Buffer{}, slices.Values(recs)); !errors.Is(err, ErrNameTooLong) {
		t.Fatalf("Encode error = %v, want ErrNameTooLong", err)
	}
}
