package output

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestProgressBar_Percent(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(&buf, "upload", 100)

	bar.Set(50)
	if !strings.Contains(buf.String(), "upload") || !strings.Contains(buf.String(), " 50%") {
		t.Errorf("output = %q, want title and 50%%", buf.String())
	}

	bar.Add(100)
	if !strings.Contains(buf.String(), "100%") {
		t.Errorf("progress past total should clamp to 100%%, got %q", buf.String())
	}
}

func TestProgressBar_Writer(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(&buf, "download", 0)

	n, err := io.Copy(io.Discard, io.TeeReader(strings.NewReader(strings.Repeat("x", 2048)), bar))
	if err != nil || n != 2048 {
		t.Fatalf("copy = %d, %v", n, err)
	}
	bar.Finish()

	out := buf.String()
	if !strings.Contains(out, "2.0 KiB") {
		t.Errorf("unknown total should show bytes, got %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("Finish should end the line")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
