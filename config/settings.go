package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/text/language"
)

// Defaults returns the built-in default values for every known key.
func Defaults() map[string]string {
	return map[string]string{
		"api_url":                "http://localhost:8000/api",
		"stream_url":             "ws://localhost:8000/ws",
		"language":               "en-US",
		"segment_seconds":        "10",
		"sample_rate":            "16000",
		"channels":               "1",
		"upload_max_retries":     "3",
		"upload_retry_base":      "1s",
		"heartbeat_interval":     "10s",
		"reconnect_max_attempts": "5",
		"reconnect_base_delay":   "1s",
		"completion_timeout":     "30s",
		"cache_path":             "",
		"merge_enabled":          "false",
		"merge_max_gap":          "1500ms",
		"merge_max_chars":        "200",
		"webhook_url":            "",
	}
}

// Settings is the typed configuration consumed by the pipeline components.
type Settings struct {
	// APIURL is the base URL for the segment and session endpoints.
	APIURL string

	// StreamURL is the base URL for the transcript websocket.
	StreamURL string

	// Language is the transcription locale requested from the backend.
	Language language.Tag

	// SegmentDuration is the target duration of each captured segment.
	SegmentDuration time.Duration

	// SampleRate and Channels describe the PCM capture format.
	SampleRate int
	Channels   int

	// UploadMaxRetries bounds delivery attempts before a segment is cached.
	UploadMaxRetries int

	// UploadRetryBase is the initial delivery backoff delay; it doubles
	// per attempt.
	UploadRetryBase time.Duration

	// HeartbeatInterval is how often the stream client pings the backend.
	HeartbeatInterval time.Duration

	// ReconnectMaxAttempts bounds stream reconnects before giving up.
	ReconnectMaxAttempts int

	// ReconnectBaseDelay is the initial reconnect backoff delay.
	ReconnectBaseDelay time.Duration

	// CompletionTimeout bounds the wait for the transcript-complete event
	// after recording stops.
	CompletionTimeout time.Duration

	// CachePath is the SQLite file holding undelivered segments.
	CachePath string

	// MergeEnabled turns on coalescing of adjacent transcript fragments.
	MergeEnabled bool

	// MergeMaxGap is the largest time gap between fragments that may merge.
	MergeMaxGap time.Duration

	// MergeMaxChars caps the combined text length of a merged line.
	MergeMaxChars int

	// WebhookURL, if set, receives pipeline events as JSON posts.
	WebhookURL string
}

// Load resolves configuration from all layers and parses it into Settings.
func Load() (*Settings, error) {
	return Parse(NewResolver(ResolverConfig{}).Resolve())
}

// Parse converts resolved key-value configuration into typed Settings.
func Parse(cfg *Resolved) (*Settings, error) {
	s := &Settings{
		APIURL:     cfg.Get("api_url"),
		StreamURL:  cfg.Get("stream_url"),
		CachePath:  cfg.Get("cache_path"),
		WebhookURL: cfg.Get("webhook_url"),
	}

	tag, err := language.Parse(cfg.Get("language"))
	if err != nil {
		return nil, fmt.Errorf("language %q: %w", cfg.Get("language"), err)
	}
	s.Language = tag

	ints := []struct {
		key string
		dst *int
		min int
	}{
		{"sample_rate", &s.SampleRate, 8000},
		{"channels", &s.Channels, 1},
		{"upload_max_retries", &s.UploadMaxRetries, 1},
		{"reconnect_max_attempts", &s.ReconnectMaxAttempts, 1},
		{"merge_max_chars", &s.MergeMaxChars, 1},
	}
	for _, f := range ints {
		v, err := strconv.Atoi(cfg.Get(f.key))
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", f.key, cfg.Get(f.key), err)
		}
		if v < f.min {
			return nil, fmt.Errorf("%s must be at least %d, got %d", f.key, f.min, v)
		}
		*f.dst = v
	}

	secs, err := strconv.Atoi(cfg.Get("segment_seconds"))
	if err != nil {
		return nil, fmt.Errorf("segment_seconds %q: %w", cfg.Get("segment_seconds"), err)
	}
	if secs < 1 {
		return nil, fmt.Errorf("segment_seconds must be at least 1, got %d", secs)
	}
	s.SegmentDuration = time.Duration(secs) * time.Second

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"upload_retry_base", &s.UploadRetryBase},
		{"heartbeat_interval", &s.HeartbeatInterval},
		{"reconnect_base_delay", &s.ReconnectBaseDelay},
		{"completion_timeout", &s.CompletionTimeout},
		{"merge_max_gap", &s.MergeMaxGap},
	}
	for _, f := range durations {
		d, err := time.ParseDuration(cfg.Get(f.key))
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", f.key, cfg.Get(f.key), err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %s", f.key, d)
		}
		*f.dst = d
	}

	s.MergeEnabled, err = strconv.ParseBool(cfg.Get("merge_enabled"))
	if err != nil {
		return nil, fmt.Errorf("merge_enabled %q: %w", cfg.Get("merge_enabled"), err)
	}

	if s.CachePath == "" {
		s.CachePath = defaultCachePath()
	}

	return s, nil
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "scribecore", "segments.db")
}
