package tests

import (
	"bytes"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncWriter guards a buffer shared with a running command.
type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *syncWriter) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.String()
}

func waitFor(t *testing.T, sw *syncWriter, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(sw.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("output never contained %q", want)
}

func httptestPost(url string) (*http.Response, error) {
	return http.Post(url, "application/octet-stream", nil)
}
