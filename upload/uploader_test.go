package upload_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/otoitsuki/scribecore/segment"
	"github.com/otoitsuki/scribecore/upload"
)

// segmentServer records PUT segment payloads and can be told to fail a
// given sequence a fixed number of times before accepting it.
type segmentServer struct {
	mu       sync.Mutex
	stored   map[string][]byte // path -> payload
	failures map[string]int    // path -> remaining failures
	calls    map[string]int
}

func newSegmentServer() *segmentServer {
	return &segmentServer{
		stored:   make(map[string][]byte),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
}

func (s *segmentServer) failPath(path string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = times
}

func (s *segmentServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[r.URL.Path]++
	if s.failures[r.URL.Path] > 0 {
		s.failures[r.URL.Path]--
		http.Error(w, `{"error": "backend unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	if _, exists := s.stored[r.URL.Path]; exists {
		http.Error(w, `{"error": "sequence already stored"}`, http.StatusConflict)
		return
	}

	buf := make([]byte, r.ContentLength)
	r.Body.Read(buf)
	s.stored[r.URL.Path] = buf
	w.WriteHeader(http.StatusCreated)
}

func (s *segmentServer) callCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

func (s *segmentServer) storedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored)
}

func newTestUploader(t *testing.T, baseURL string) (*upload.Uploader, *upload.Cache) {
	t.Helper()
	cache, err := upload.OpenCache(filepath.Join(t.TempDir(), "segments.db"))
	if err != nil {
		t.Fatalf("OpenCache() error = %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	u := upload.NewUploader(upload.UploaderConfig{
		BaseURL:   baseURL,
		Cache:     cache,
		SessionID: "sess-1",
		RetryBase: time.Millisecond,
	})
	return u, cache
}

func TestUploader_Delivers(t *testing.T) {
	backend := newSegmentServer()
	srv := httptest.NewServer(backend)
	defer srv.Close()

	u, cache := newTestUploader(t, srv.URL)
	u.Submit(context.Background(), segment.Segment{Sequence: 0, Payload: []byte("audio-0")})
	if err := u.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	if got := backend.storedCount(); got != 1 {
		t.Errorf("stored = %d, want 1", got)
	}
	if n, _ := cache.Count("sess-1"); n != 0 {
		t.Errorf("cache count = %d, want 0", n)
	}
}

func TestUploader_RetriesTransientFailure(t *testing.T) {
	backend := newSegmentServer()
	backend.failPath("/sessions/sess-1/segments/0", 2)
	srv := httptest.NewServer(backend)
	defer srv.Close()

	u, cache := newTestUploader(t, srv.URL)
	u.Submit(context.Background(), segment.Segment{Sequence: 0, Payload: []byte("audio-0")})
	u.Drain(context.Background())

	if got := backend.callCount("/sessions/sess-1/segments/0"); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	if got := backend.storedCount(); got != 1 {
		t.Errorf("stored = %d, want 1 after recovery", got)
	}
	if n, _ := cache.Count("sess-1"); n != 0 {
		t.Errorf("cache count = %d, want 0", n)
	}
}

func TestUploader_ExhaustedRetriesParkSegment(t *testing.T) {
	backend := newSegmentServer()
	backend.failPath("/sessions/sess-1/segments/2", 100)
	srv := httptest.NewServer(backend)
	defer srv.Close()

	u, cache := newTestUploader(t, srv.URL)
	u.Submit(context.Background(), segment.Segment{Sequence: 2, Payload: []byte("audio-2")})
	u.Drain(context.Background())

	segs, err := cache.ForSession("sess-1")
	if err != nil {
		t.Fatalf("ForSession() error = %v", err)
	}
	if len(segs) != 1 {
		t.Fatalf("cache holds %d segments, want 1", len(segs))
	}
	if segs[0].Sequence != 2 {
		t.Errorf("Sequence = %d, want 2", segs[0].Sequence)
	}
	if segs[0].RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", segs[0].RetryCount)
	}
	if string(segs[0].Payload) != "audio-2" {
		t.Errorf("Payload = %q, want %q", segs[0].Payload, "audio-2")
	}
}

func TestUploader_RetryFailedDrainsBacklog(t *testing.T) {
	backend := newSegmentServer()
	backend.failPath("/sessions/sess-1/segments/2", 100)
	srv := httptest.NewServer(backend)
	defer srv.Close()

	u, cache := newTestUploader(t, srv.URL)
	u.Submit(context.Background(), segment.Segment{Sequence: 2, Payload: []byte("audio-2")})
	u.Drain(context.Background())

	if n, _ := cache.Count("sess-1"); n != 1 {
		t.Fatalf("cache count = %d, want 1 before replay", n)
	}

	// Backend recovers.
	backend.failPath("/sessions/sess-1/segments/2", 0)

	delivered, err := u.RetryFailed(context.Background())
	if err != nil {
		t.Fatalf("RetryFailed() error = %v", err)
	}
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}
	if n, _ := cache.Count("sess-1"); n != 0 {
		t.Errorf("cache count = %d, want 0 after replay", n)
	}
	if got := backend.storedCount(); got != 1 {
		t.Errorf("stored = %d, want 1", got)
	}
}

func TestUploader_RetryFailedKeepsUndeliverable(t *testing.T) {
	backend := newSegmentServer()
	backend.failPath("/sessions/sess-1/segments/0", 100)
	srv := httptest.NewServer(backend)
	defer srv.Close()

	u, cache := newTestUploader(t, srv.URL)
	u.Submit(context.Background(), segment.Segment{Sequence: 0, Payload: []byte("audio-0")})
	u.Drain(context.Background())

	delivered, err := u.RetryFailed(context.Background())
	if err == nil {
		t.Error("RetryFailed() error = nil, want delivery error")
	}
	if delivered != 0 {
		t.Errorf("delivered = %d, want 0", delivered)
	}

	segs, _ := cache.ForSession("sess-1")
	if len(segs) != 1 {
		t.Fatalf("cache holds %d segments, want 1", len(segs))
	}
	if segs[0].RetryCount != 4 {
		t.Errorf("RetryCount = %d, want 4 after one replay failure", segs[0].RetryCount)
	}
}

func TestUploader_ConflictCountsAsDelivered(t *testing.T) {
	backend := newSegmentServer()
	srv := httptest.NewServer(backend)
	defer srv.Close()

	u, cache := newTestUploader(t, srv.URL)
	seg := segment.Segment{Sequence: 5, Payload: []byte("audio-5")}
	u.Submit(context.Background(), seg)
	u.Drain(context.Background())
	u.Submit(context.Background(), seg)
	if err := u.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	if got := backend.storedCount(); got != 1 {
		t.Errorf("stored = %d, want 1 (duplicate must not double-store)", got)
	}
	if n, _ := cache.Count("sess-1"); n != 0 {
		t.Errorf("cache count = %d, want 0 (conflict is delivery)", n)
	}
}

func TestUploader_CancelDuringBackoffParksSegment(t *testing.T) {
	backend := newSegmentServer()
	backend.failPath("/sessions/sess-1/segments/0", 100)
	srv := httptest.NewServer(backend)
	defer srv.Close()

	cache, err := upload.OpenCache(filepath.Join(t.TempDir(), "segments.db"))
	if err != nil {
		t.Fatalf("OpenCache() error = %v", err)
	}
	defer cache.Close()

	u := upload.NewUploader(upload.UploaderConfig{
		BaseURL:   srv.URL,
		Cache:     cache,
		SessionID: "sess-1",
		RetryBase: time.Minute, // long enough that cancel wins the backoff
	})

	ctx, cancel := context.WithCancel(context.Background())
	u.Submit(ctx, segment.Segment{Sequence: 0, Payload: []byte("audio-0")})

	// Let the first attempt fail, then cancel while the backoff is pending.
	deadline := time.After(5 * time.Second)
	for backend.callCount("/sessions/sess-1/segments/0") == 0 {
		select {
		case <-deadline:
			t.Fatal("first delivery attempt never reached the backend")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	u.Drain(context.Background())

	segs, _ := cache.ForSession("sess-1")
	if len(segs) != 1 {
		t.Fatalf("cache holds %d segments, want 1 (cancel must not drop)", len(segs))
	}
	if segs[0].Sequence != 0 {
		t.Errorf("Sequence = %d, want 0", segs[0].Sequence)
	}
}

func TestUploader_Outcomes(t *testing.T) {
	backend := newSegmentServer()
	backend.failPath("/sessions/sess-1/segments/0", 1)
	srv := httptest.NewServer(backend)
	defer srv.Close()

	u, _ := newTestUploader(t, srv.URL)
	u.Submit(context.Background(), segment.Segment{Sequence: 0, Payload: []byte("audio-0")})
	u.Drain(context.Background())

	first := <-u.Outcomes()
	if first.Status != upload.StatusRetrying {
		t.Errorf("first outcome = %q, want %q", first.Status, upload.StatusRetrying)
	}
	second := <-u.Outcomes()
	if second.Status != upload.StatusDelivered {
		t.Errorf("second outcome = %q, want %q", second.Status, upload.StatusDelivered)
	}
	if second.Attempt != 2 {
		t.Errorf("delivered on attempt %d, want 2", second.Attempt)
	}
}

func TestUploader_Backlog(t *testing.T) {
	backend := newSegmentServer()
	backend.failPath("/sessions/sess-1/segments/0", 100)
	srv := httptest.NewServer(backend)
	defer srv.Close()

	u, _ := newTestUploader(t, srv.URL)
	u.Submit(context.Background(), segment.Segment{Sequence: 0, Payload: []byte("audio-0")})
	u.Drain(context.Background())

	n, err := u.Backlog()
	if err != nil {
		t.Fatalf("Backlog() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Backlog() = %d, want 1", n)
	}
}
