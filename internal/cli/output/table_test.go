package output

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestTableFormatter_Table(t *testing.T) {
	table := &Table{Headers: []string{"NAME", "VALUE"}}
	table.AddRow("key1", "value1")

	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, table); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q, want header and one row", lines)
	}
	if !strings.HasPrefix(lines[0], "NAME") || !strings.HasPrefix(lines[1], "key1") {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	if err := (&TableFormatter{NoHeaders: true}).Format(&buf, *table); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if strings.Contains(buf.String(), "NAME") {
		t.Error("NoHeaders output contains the header")
	}
}

func TestTableFormatter_Struct(t *testing.T) {
	data := struct {
		Code      string    `json:"code"`
		Name      string    `json:"name"`
		Size      uint64    `json:"size" table:"bytes"`
		ExpiresAt time.Time `json:"expires_at"`
		Secret    string    `table:"-"`
		hidden    string
	}{
		Code: "123456",
		Size: 2048,
	}

	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, &data); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{"FIELD", "code", "123456", "2.0 KiB", "expires_at"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Secret") || strings.Contains(out, "hidden") {
		t.Errorf("hidden fields rendered:\n%s", out)
	}
	// empty string and zero time render as "-"
	if strings.Count(out, "-") < 2 {
		t.Errorf("empty values should render as -:\n%s", out)
	}
}

func TestTableFormatter_MapSorted(t *testing.T) {
	var buf bytes.Buffer
	err := (&TableFormatter{}).Format(&buf, map[string]int{"b": 2, "a": 1, "c": 3})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %q", lines)
	}
	for i, want := range []string{"a", "b", "c"} {
		if !strings.HasPrefix(lines[i+1], want) {
			t.Errorf("row %d = %q, want prefix %q", i, lines[i+1], want)
		}
	}
}

func TestTableFormatter_FallbackJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, []string{"x", "y"}); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"x"`) {
		t.Errorf("slice should fall back to JSON, got %q", buf.String())
	}
}

func TestTableFormatter_Nil(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, nil); err != nil {
		t.Fatalf("Format(nil) error = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("Format(nil) wrote %q", buf.String())
	}
}
