package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/twinisland/filebay/internal/core/service"
	"github.com/twinisland/filebay/internal/storage"
	"github.com/twinisland/filebay/internal/storage/blob"
	"github.com/twinisland/filebay/internal/storage/snapshot"
	"github.com/twinisland/filebay/internal/telemetry/metric"
)

type testStack struct {
	svc      *service.UploadService
	notifier *Notifier
	router   *Router
	server   *httptest.Server
}

func newTestStack(t *testing.T, rateLimit float64) *testStack {
	t.Helper()
	dir := t.TempDir()
	blobs, err := blob.NewLocal(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	snap, err := snapshot.NewManager(snapshot.DefaultConfig(filepath.Join(dir, "filebay.snap")))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	engine, err := storage.New(storage.DefaultConfig(4), blobs, snap)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	reg := metric.NewRegistry()
	svc, err := service.NewUploadService(engine, service.UploadConfig{
		MaxBytes: 1 << 16,
		TTL:      time.Hour,
		MaxLive:  4,
		Metrics:  reg,
	})
	if err != nil {
		t.Fatalf("NewUploadService: %v", err)
	}

	n := NewNotifier(func(ctx context.Context) bool { return !svc.Status(ctx).Accepting }, 10*time.Millisecond, nil)
	n.Start(context.Background())
	t.Cleanup(n.Stop)

	rt := NewRouter(&RouterConfig{
		Uploads:        svc,
		Notifier:       n,
		Metrics:        reg,
		MetricsEnabled: true,
		RateLimit:      rateLimit,
		RateBurst:      2,
	})
	srv := httptest.NewServer(rt)
	t.Cleanup(srv.Close)

	return &testStack{svc: svc, notifier: n, router: rt, server: srv}
}

func TestRouter_StatusWebsocket(t *testing.T) {
	st := newTestStack(t, 0)
	ctx := context.Background()

	url := "ws" + strings.TrimPrefix(st.server.URL, "http") + "/api/status"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	read := func() string {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		return string(msg)
	}

	if got := read(); got != "0" {
		t.Fatalf("first frame = %q, want 0", got)
	}

	app, err := st.svc.Apply(ctx)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for read() != "1" {
		if time.Now().After(deadline) {
			t.Fatal("never saw a busy frame")
		}
	}

	if err := st.svc.Abandon(ctx, app.Token); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	for read() != "0" {
		if time.Now().After(deadline.Add(2 * time.Second)) {
			t.Fatal("never saw an idle frame")
		}
	}
}

func TestRouter_StatusWebsocketClosedOnStop(t *testing.T) {
	st := newTestStack(t, 0)

	url := "ws" + strings.TrimPrefix(st.server.URL, "http") + "/api/status"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	st.notifier.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Fatalf("ReadMessage error = %v, want going-away close", err)
			}
			return
		}
	}
}

func TestRouter_RateLimitsDownloadOnly(t *testing.T) {
	st := newTestStack(t, 0.001)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := http.Get(st.server.URL + "/api/download/123456")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	if codes[0] != 404 || codes[1] != 404 || codes[2] != http.StatusTooManyRequests {
		t.Errorf("download statuses = %v, want [404 404 429]", codes)
	}

	for i := 0; i < 5; i++ {
		resp, err := http.Get(st.server.URL + "/api/config")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("config status = %d, want 200", resp.StatusCode)
		}
	}
}

func TestRouter_MetricsAndRequestID(t *testing.T) {
	st := newTestStack(t, 0)

	resp, err := http.Post(st.server.URL+"/api/apply", "", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	var env struct {
		Code      string `json:"code"`
		RequestID string `json:"request_id"`
	}
	json.NewDecoder(resp.Body).Decode(&env)
	resp.Body.Close()

	if env.Code != "OK" || env.RequestID == "" || env.RequestID != resp.Header.Get("X-Request-ID") {
		t.Errorf("envelope = %+v, header id %q", env, resp.Header.Get("X-Request-ID"))
	}

	resp, err = http.Get(st.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	body := string(raw)
	for _, want := range []string{
		`filebay_reservations_total{result="ok"} 1`,
		`filebay_http_requests_total{method="POST",path="/api/apply",status="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestServer_Shutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	s := New(Options{Addr: ln.Addr().String(), ReadTimeout: time.Second, WriteTimeout: time.Second},
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ln) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown error: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve returned %v, want nil after Shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for Serve to return")
	}
}
