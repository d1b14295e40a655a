package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(ClientConfig{
		BaseURL:     srv.URL,
		ServiceName: "test",
		MaxRetries:  3,
		RetryWait:   time.Millisecond,
	})
}

func TestClient_Get(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/abc" {
			t.Errorf("path = %q, want /sessions/abc", r.URL.Path)
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("expected X-Request-Id header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"abc","status":"active"}`))
	}))

	var result struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := c.Get(context.Background(), "/sessions/abc", &result); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if result.ID != "abc" {
		t.Errorf("ID = %q, want %q", result.ID, "abc")
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := c.Get(context.Background(), "/", nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"no such session"}`))
	}))

	err := c.Get(context.Background(), "/sessions/missing", nil)
	if !IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Message != "no such session" {
		t.Errorf("Message = %q, want %q", apiErr.Message, "no such session")
	}
}

func TestClient_PutRaw_Conflict(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %q, want PUT", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "audio/wav" {
			t.Errorf("Content-Type = %q, want audio/wav", ct)
		}
		w.WriteHeader(http.StatusConflict)
	}))

	err := c.PutRaw(context.Background(), "/sessions/abc/segments/0", "audio/wav", []byte("RIFF"))
	if !IsConflict(err) {
		t.Errorf("expected conflict error, got %v", err)
	}
}

func TestClient_RateLimitError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	err := c.Get(context.Background(), "/", nil)
	if !IsRateLimited(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}

	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected *RateLimitError, got %T", err)
	}
	if rlErr.RetryAfter != time.Second {
		t.Errorf("RetryAfter = %s, want 1s", rlErr.RetryAfter)
	}
	// Retried up to the cap before surfacing
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Get(ctx, "/", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", &APIError{StatusCode: 502}, true},
		{"rate limited", &RateLimitError{Service: "test"}, true},
		{"not found", &APIError{StatusCode: 404}, false},
		{"conflict", &APIError{StatusCode: 409}, false},
		{"plain", errors.New("x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
