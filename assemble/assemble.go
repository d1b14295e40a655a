package assemble

import (
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"
)

// Fragment is one transcript piece pushed by the backend. Immutable once
// accepted. Sequence is nil when the backend does not number fragments;
// identity then falls back to the start time.
type Fragment struct {
	Sequence   *uint64
	Text       string
	StartTime  float64
	EndTime    float64
	Confidence float64
}

// key identifies a fragment for deduplication.
type key struct {
	hasSeq bool
	seq    uint64
	start  float64
}

func (f Fragment) key() key {
	if f.Sequence != nil {
		return key{hasSeq: true, seq: *f.Sequence}
	}
	return key{start: f.StartTime}
}

// Line is one display row of the assembled transcript. Without merging a
// line is exactly one fragment; with merging, Fragments counts how many
// were coalesced.
type Line struct {
	Text      string
	StartTime float64
	EndTime   float64
	Fragments int
}

// MergePolicy controls coalescing of adjacent fragments into one Line.
// The zero value disables merging, which keeps per-utterance timestamps
// intact for downstream consumers.
type MergePolicy struct {
	// Enabled turns merging on.
	Enabled bool

	// MaxGap is the largest silence between two fragments that still
	// allows them to share a line.
	MaxGap time.Duration

	// MaxChars caps the text length of a merged line.
	MaxChars int
}

// AssemblerConfig holds configuration for Assembler.
type AssemblerConfig struct {
	Merge  MergePolicy
	Logger *slog.Logger
}

// Assembler accumulates fragments for one session and rebuilds the
// ordered transcript on every accepted arrival. Safe for concurrent use.
type Assembler struct {
	merge  MergePolicy
	logger *slog.Logger

	mu        sync.Mutex
	fragments []Fragment
	seen      map[key]struct{}
	complete  bool

	updates chan struct{}
}

// NewAssembler creates an empty Assembler.
func NewAssembler(cfg AssemblerConfig) *Assembler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Assembler{
		merge:   cfg.Merge,
		logger:  cfg.Logger,
		seen:    make(map[key]struct{}),
		updates: make(chan struct{}, 1),
	}
}

// Add accepts a fragment. It reports false when the fragment's identity
// was seen before; duplicates never modify the transcript.
func (a *Assembler) Add(f Fragment) bool {
	a.mu.Lock()

	k := f.key()
	if _, dup := a.seen[k]; dup {
		a.mu.Unlock()
		a.logger.Debug("duplicate fragment discarded",
			"start_time", f.StartTime, "text_len", len(f.Text))
		return false
	}
	a.seen[k] = struct{}{}

	// Insert keeping the slice sorted by start time so a rebuild never
	// scans more than once.
	i := sort.Search(len(a.fragments), func(i int) bool {
		return a.fragments[i].StartTime > f.StartTime
	})
	a.fragments = slices.Insert(a.fragments, i, f)
	a.mu.Unlock()

	a.signal()
	return true
}

// Lines builds the current transcript snapshot in arrival-independent
// order, applying the merge policy when enabled.
func (a *Assembler) Lines() []Line {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.merge.Enabled {
		lines := make([]Line, len(a.fragments))
		for i, f := range a.fragments {
			lines[i] = Line{Text: f.Text, StartTime: f.StartTime, EndTime: f.EndTime, Fragments: 1}
		}
		return lines
	}
	return a.mergedLines()
}

func (a *Assembler) mergedLines() []Line {
	var lines []Line
	for _, f := range a.fragments {
		if len(lines) > 0 {
			cur := &lines[len(lines)-1]
			gap := time.Duration((f.StartTime - cur.EndTime) * float64(time.Second))
			if gap <= a.merge.MaxGap && len(cur.Text)+1+len(f.Text) <= a.merge.MaxChars {
				cur.Text = cur.Text + " " + f.Text
				cur.EndTime = f.EndTime
				cur.Fragments++
				continue
			}
		}
		lines = append(lines, Line{Text: f.Text, StartTime: f.StartTime, EndTime: f.EndTime, Fragments: 1})
	}
	return lines
}

// Len reports how many fragments have been accepted.
func (a *Assembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.fragments)
}

// MarkComplete records that the backend has emitted every fragment for
// the session. Only the dedicated completion event sets this; the
// transcript never self-declares completeness.
func (a *Assembler) MarkComplete() {
	a.mu.Lock()
	a.complete = true
	a.mu.Unlock()
	a.signal()
}

// Complete reports whether the completion event has arrived.
func (a *Assembler) Complete() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.complete
}

// Reset clears the transcript for a new session.
func (a *Assembler) Reset() {
	a.mu.Lock()
	a.fragments = nil
	a.seen = make(map[key]struct{})
	a.complete = false
	a.mu.Unlock()
	a.signal()
}

// Updates returns a coalesced change signal: one receive may cover any
// number of accepted fragments. Call Lines for the current snapshot.
func (a *Assembler) Updates() <-chan struct{} {
	return a.updates
}

func (a *Assembler) signal() {
	select {
	case a.updates <- struct{}{}:
	default:
	}
}
