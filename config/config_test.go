package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestResolve_DefaultsOnly(t *testing.T) {
	r := NewResolverWithPaths(ResolverConfig{}, "", "")
	cfg := r.Resolve()

	if got := cfg.Get("api_url"); got != "http://localhost:8000/api" {
		t.Errorf("api_url = %q, want default", got)
	}
	if got := cfg.Source("api_url"); got != SourceDefault {
		t.Errorf("Source(api_url) = %q, want %q", got, SourceDefault)
	}
}

func TestResolve_Precedence(t *testing.T) {
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "config.yaml")
	localPath := filepath.Join(dir, ".scribecore.yaml")

	writeFile(t, globalPath, "api_url: http://global:8000/api\nsegment_seconds: 5\n")
	writeFile(t, localPath, "api_url: http://local:8000/api\n")
	t.Setenv("SCRIBE_SEGMENT_SECONDS", "15")

	r := NewResolverWithPaths(ResolverConfig{}, globalPath, localPath)
	cfg := r.Resolve()

	tests := []struct {
		key        string
		want       string
		wantSource Source
	}{
		{"api_url", "http://local:8000/api", SourceLocal},
		{"segment_seconds", "15", SourceEnv},
		{"heartbeat_interval", "10s", SourceDefault},
	}

	for _, tt := range tests {
		got, source := cfg.GetWithSource(tt.key)
		if got != tt.want {
			t.Errorf("Get(%q) = %q, want %q", tt.key, got, tt.want)
		}
		if source != tt.wantSource {
			t.Errorf("Source(%q) = %q, want %q", tt.key, source, tt.wantSource)
		}
	}
}

func TestResolve_MalformedFileWarns(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, ".scribecore.yaml")
	writeFile(t, localPath, "not: [valid: yaml\n")

	var buf bytes.Buffer
	r := NewResolverWithPaths(ResolverConfig{ErrWriter: &buf}, "", localPath)
	cfg := r.Resolve()

	if len(r.Warnings) != 1 {
		t.Fatalf("Warnings = %d, want 1", len(r.Warnings))
	}
	if buf.Len() == 0 {
		t.Error("expected warning written to ErrWriter")
	}
	// Defaults still apply
	if got := cfg.Get("stream_url"); got != "ws://localhost:8000/ws" {
		t.Errorf("stream_url = %q, want default", got)
	}
}

func TestResolve_BoolAndIntValues(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, ".scribecore.yaml")
	writeFile(t, localPath, "merge_enabled: true\nmerge_max_chars: 120\n")

	r := NewResolverWithPaths(ResolverConfig{}, "", localPath)
	cfg := r.Resolve()

	if got := cfg.Get("merge_enabled"); got != "true" {
		t.Errorf("merge_enabled = %q, want %q", got, "true")
	}
	if got := cfg.Get("merge_max_chars"); got != "120" {
		t.Errorf("merge_max_chars = %q, want %q", got, "120")
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg := NewResolverWithPaths(ResolverConfig{}, "", "").Resolve()

	s, err := Parse(cfg)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if s.SegmentDuration != 10*time.Second {
		t.Errorf("SegmentDuration = %s, want 10s", s.SegmentDuration)
	}
	if s.UploadMaxRetries != 3 {
		t.Errorf("UploadMaxRetries = %d, want 3", s.UploadMaxRetries)
	}
	if s.ReconnectMaxAttempts != 5 {
		t.Errorf("ReconnectMaxAttempts = %d, want 5", s.ReconnectMaxAttempts)
	}
	if s.HeartbeatInterval != 10*time.Second {
		t.Errorf("HeartbeatInterval = %s, want 10s", s.HeartbeatInterval)
	}
	if s.MergeEnabled {
		t.Error("MergeEnabled = true, want false by default")
	}
	if s.Language.String() != "en-US" {
		t.Errorf("Language = %q, want en-US", s.Language)
	}
	if s.CachePath == "" {
		t.Error("CachePath should fall back to the user cache directory")
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad language", "language", "not a tag!"},
		{"bad duration", "heartbeat_interval", "soon"},
		{"zero retries", "upload_max_retries", "0"},
		{"negative seconds", "segment_seconds", "-1"},
		{"bad bool", "merge_enabled", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewResolverWithPaths(ResolverConfig{}, "", "").Resolve()
			cfg.values[tt.key] = tt.val

			if _, err := Parse(cfg); err == nil {
				t.Errorf("Parse() with %s=%q expected error", tt.key, tt.val)
			}
		})
	}
}
