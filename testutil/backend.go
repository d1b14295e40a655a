package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// FakeBackend emulates the transcription service end to end: the
// recording-session REST API, the segment upload endpoint, and the
// websocket push stream. Tests drive the push side directly.
type FakeBackend struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	nextID    int
	sessions  map[string]string // id -> language
	finished  map[string]bool
	deleted   map[string]bool
	segments  map[string]map[uint64][]byte
	failures  map[string]int // "<session>/<seq>" -> remaining failures
	conns     map[string][]*websocket.Conn
	refusing  bool
	wsAccepts int
}

// NewFakeBackend starts the fake service on an httptest server.
func NewFakeBackend() *FakeBackend {
	b := &FakeBackend{
		sessions: make(map[string]string),
		finished: make(map[string]bool),
		deleted:  make(map[string]bool),
		segments: make(map[string]map[uint64][]byte),
		failures: make(map[string]int),
		conns:    make(map[string][]*websocket.Conn),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", b.createSession)
	mux.HandleFunc("POST /api/sessions/{id}/finish", b.finishSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", b.deleteSession)
	mux.HandleFunc("PUT /api/sessions/{id}/segments/{seq}", b.putSegment)
	mux.HandleFunc("GET /ws/sessions/{id}", b.streamSession)
	b.srv = httptest.NewServer(mux)
	return b
}

// Close shuts the server down.
func (b *FakeBackend) Close() {
	b.mu.Lock()
	for _, conns := range b.conns {
		for _, c := range conns {
			c.Close()
		}
	}
	b.mu.Unlock()
	b.srv.Close()
}

// APIURL is the REST base URL.
func (b *FakeBackend) APIURL() string { return b.srv.URL + "/api" }

// StreamURL is the websocket base URL.
func (b *FakeBackend) StreamURL() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/ws"
}

func (b *FakeBackend) createSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Language string `json:"language"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	b.nextID++
	id := fmt.Sprintf("sess-%d", b.nextID)
	b.sessions[id] = body.Language
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"id": id, "language": body.Language})
}

func (b *FakeBackend) finishSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.sessions[id]; !ok {
		http.Error(w, `{"error": "no such session"}`, http.StatusNotFound)
		return
	}
	b.finished[id] = true
	w.WriteHeader(http.StatusNoContent)
}

func (b *FakeBackend) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.sessions[id]; !ok {
		http.Error(w, `{"error": "no such session"}`, http.StatusNotFound)
		return
	}
	delete(b.sessions, id)
	b.deleted[id] = true
	w.WriteHeader(http.StatusNoContent)
}

func (b *FakeBackend) putSegment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	seq, err := strconv.ParseUint(r.PathValue("seq"), 10, 64)
	if err != nil {
		http.Error(w, `{"error": "bad sequence"}`, http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	key := fmt.Sprintf("%s/%d", id, seq)
	if b.failures[key] > 0 {
		b.failures[key]--
		http.Error(w, `{"error": "backend unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	if _, exists := b.segments[id][seq]; exists {
		http.Error(w, `{"error": "sequence already stored"}`, http.StatusConflict)
		return
	}

	payload := make([]byte, r.ContentLength)
	r.Body.Read(payload)
	if b.segments[id] == nil {
		b.segments[id] = make(map[uint64][]byte)
	}
	b.segments[id][seq] = payload
	w.WriteHeader(http.StatusCreated)
}

func (b *FakeBackend) streamSession(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	refusing := b.refusing
	b.mu.Unlock()
	if refusing {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	// The client's handshake ping arrives before any pushes.
	if _, _, err := conn.ReadMessage(); err != nil {
		conn.Close()
		return
	}

	id := r.PathValue("id")
	b.mu.Lock()
	b.conns[id] = append(b.conns[id], conn)
	b.wsAccepts++
	b.mu.Unlock()

	go b.serveStream(conn)
}

// serveStream acknowledges heartbeats until the connection drops.
func (b *FakeBackend) serveStream(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &env) == nil && env.Type == "heartbeat" {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat_ack"}`))
		}
	}
}

// Push writes a raw frame on the latest stream connection for a session.
func (b *FakeBackend) Push(sessionID, raw string) error {
	b.mu.Lock()
	conns := b.conns[sessionID]
	b.mu.Unlock()
	if len(conns) == 0 {
		return fmt.Errorf("no stream connection for session %s", sessionID)
	}
	return conns[len(conns)-1].WriteMessage(websocket.TextMessage, []byte(raw))
}

// PushFragment pushes one transcript fragment.
func (b *FakeBackend) PushFragment(sessionID string, seq uint64, text string, start, end float64) error {
	return b.Push(sessionID, fmt.Sprintf(
		`{"type":"transcript_segment","text":%q,"start_time":%g,"end_time":%g,"sequence":%d}`,
		text, start, end, seq))
}

// PushComplete pushes the transcript completion event.
func (b *FakeBackend) PushComplete(sessionID string) error {
	return b.Push(sessionID, `{"type":"transcript_complete"}`)
}

// SeverStream closes the latest connection without a close handshake.
func (b *FakeBackend) SeverStream(sessionID string) {
	b.mu.Lock()
	conns := b.conns[sessionID]
	b.mu.Unlock()
	if len(conns) > 0 {
		conns[len(conns)-1].Close()
	}
}

// RefuseStreams makes further websocket upgrades fail.
func (b *FakeBackend) RefuseStreams(v bool) {
	b.mu.Lock()
	b.refusing = v
	b.mu.Unlock()
}

// FailSegment makes the next n uploads of (sessionID, seq) return 503.
func (b *FakeBackend) FailSegment(sessionID string, seq uint64, n int) {
	b.mu.Lock()
	b.failures[fmt.Sprintf("%s/%d", sessionID, seq)] = n
	b.mu.Unlock()
}

// SegmentCount reports how many segments a session has stored.
func (b *FakeBackend) SegmentCount(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.segments[sessionID])
}

// Finished reports whether the session was marked finished.
func (b *FakeBackend) Finished(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finished[sessionID]
}

// Deleted reports whether the session was deleted.
func (b *FakeBackend) Deleted(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deleted[sessionID]
}

// StreamAccepts reports how many websocket connections were accepted.
func (b *FakeBackend) StreamAccepts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wsAccepts
}
