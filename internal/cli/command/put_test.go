package command

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// uploadServer records a put session.
type uploadServer struct {
	*mockServer

	mu        sync.Mutex
	maxBytes  uint64
	offsets   []string
	received  strings.Builder
	applied   bool
	abandoned string
	finalName string
	failAt    int
}

func newUploadServer(t *testing.T, maxBytes uint64) *uploadServer {
	u := &uploadServer{mockServer: newMockServer(t), maxBytes: maxBytes, failAt: -1}

	u.handle("GET /api/config", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, map[string]any{"max_bytes": u.maxBytes, "ttl_seconds": 3600})
	})
	u.handle("POST /api/apply", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.applied = true
		u.mu.Unlock()
		envelope(w, map[string]any{"token": "tok-1", "expires_at": time.Now().Add(time.Hour)})
	})
	u.handle("POST /api/upload", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		if r.URL.Query().Get("token") != "tok-1" {
			errorEnvelope(w, http.StatusForbidden, "FB-SESS-4030", "invalid upload token")
			return
		}
		if len(u.offsets) == u.failAt {
			io.Copy(io.Discard, r.Body)
			errorEnvelope(w, http.StatusInsufficientStorage, "FB-CAP-5070", "registry full")
			return
		}
		u.offsets = append(u.offsets, r.URL.Query().Get("offset"))
		body, _ := io.ReadAll(r.Body)
		u.received.Write(body)
		envelope(w, map[string]any{"written": u.received.Len()})
	})
	u.handle("POST /api/finalize", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		u.finalName = r.URL.Query().Get("name")
		envelope(w, map[string]any{
			"code":       "482913",
			"name":       u.finalName,
			"size":       u.received.Len(),
			"expires_at": time.Now().Add(time.Hour),
		})
	})
	u.handle("POST /api/abandon", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.abandoned = r.URL.Query().Get("token")
		u.mu.Unlock()
		envelope(w, nil)
	})
	return u
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPut_Chunked(t *testing.T) {
	srv := newUploadServer(t, 1<<20)
	path := writeTemp(t, "report.txt", "0123456789")

	stdout, _, err := runApp(t, srv.mockServer, "-o", "json", "--chunk-size", "4", "put", path)
	if err != nil {
		t.Fatalf("put error = %v", err)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if got := strings.Join(srv.offsets, ","); got != "0,4,8" {
		t.Errorf("offsets = %s, want 0,4,8", got)
	}
	if srv.received.String() != "0123456789" {
		t.Errorf("received = %q", srv.received.String())
	}
	if srv.finalName != "report.txt" {
		t.Errorf("finalize name = %q, want report.txt", srv.finalName)
	}

	var fin finalizeResponse
	if err := json.Unmarshal([]byte(stdout), &fin); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout)
	}
	if fin.Code != "482913" || fin.Size != 10 {
		t.Errorf("result = %+v", fin)
	}
}

func TestPut_NameAndProgress(t *testing.T) {
	srv := newUploadServer(t, 1<<20)
	path := writeTemp(t, "a.bin", "abc")

	stdout, stderr, err := runApp(t, srv.mockServer, "put", "--name", "renamed.bin", path)
	if err != nil {
		t.Fatalf("put error = %v", err)
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.finalName != "renamed.bin" {
		t.Errorf("finalize name = %q", srv.finalName)
	}
	if !strings.Contains(stdout, "482913") {
		t.Errorf("table output missing code:\n%s", stdout)
	}
	if !strings.Contains(stderr, "100%") {
		t.Errorf("progress bar missing from stderr: %q", stderr)
	}
}

func TestPut_TooLarge(t *testing.T) {
	srv := newUploadServer(t, 5)
	path := writeTemp(t, "big.bin", "0123456789")

	_, _, err := runApp(t, srv.mockServer, "put", path)
	if err == nil || !strings.Contains(err.Error(), "at most") {
		t.Fatalf("put error = %v, want size error", err)
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.applied {
		t.Error("oversized file should be rejected before apply")
	}
}

func TestPut_FailureAbandons(t *testing.T) {
	srv := newUploadServer(t, 1<<20)
	srv.failAt = 1
	path := writeTemp(t, "x.bin", "0123456789")

	_, _, err := runApp(t, srv.mockServer, "-q", "--chunk-size", "4", "put", path)
	if err == nil || !strings.Contains(err.Error(), "FB-CAP-5070") {
		t.Fatalf("put error = %v, want FB-CAP-5070", err)
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.abandoned != "tok-1" {
		t.Errorf("abandoned token = %q, want tok-1", srv.abandoned)
	}
}

func TestPut_Busy(t *testing.T) {
	srv := newMockServer(t)
	srv.handle("GET /api/config", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, map[string]any{"max_bytes": 100})
	})
	srv.handle("POST /api/apply", func(w http.ResponseWriter, r *http.Request) {
		errorEnvelope(w, http.StatusConflict, "FB-SESS-4090", "upload slot busy")
	})

	_, _, err := runApp(t, srv, "put", writeTemp(t, "f", "x"))
	if err == nil || !strings.Contains(err.Error(), "FB-SESS-4090") {
		t.Fatalf("put error = %v, want FB-SESS-4090", err)
	}
}

func TestPut_Args(t *testing.T) {
	srv := newMockServer(t)

	if _, _, err := runApp(t, srv, "put"); err == nil {
		t.Error("put without FILE should fail")
	}
	if _, _, err := runApp(t, srv, "put", t.TempDir()); err == nil || !strings.Contains(err.Error(), "directory") {
		t.Errorf("put of a directory error = %v", err)
	}
}
