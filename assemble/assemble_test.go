package assemble

import (
	"math/rand"
	"testing"
	"time"
)

func seq(n uint64) *uint64 { return &n }

func fragmentFixture() []Fragment {
	return []Fragment{
		{Sequence: seq(0), Text: "good morning", StartTime: 0, EndTime: 1.8},
		{Sequence: seq(1), Text: "and welcome back", StartTime: 2.0, EndTime: 3.4},
		{Sequence: seq(2), Text: "to the show", StartTime: 3.5, EndTime: 4.6},
		{Sequence: seq(3), Text: "after a short break", StartTime: 9.0, EndTime: 10.9},
	}
}

func texts(lines []Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}

func TestAssembler_OrderIndependence(t *testing.T) {
	want := texts(func() []Line {
		a := NewAssembler(AssemblerConfig{})
		for _, f := range fragmentFixture() {
			a.Add(f)
		}
		return a.Lines()
	}())

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 10; trial++ {
		frags := fragmentFixture()
		rng.Shuffle(len(frags), func(i, j int) { frags[i], frags[j] = frags[j], frags[i] })

		a := NewAssembler(AssemblerConfig{})
		for _, f := range frags {
			if !a.Add(f) {
				t.Fatalf("trial %d: Add rejected a unique fragment", trial)
			}
		}

		got := texts(a.Lines())
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("trial %d: lines = %v, want %v", trial, got, want)
			}
		}
	}
}

func TestAssembler_SortedByStartTime(t *testing.T) {
	a := NewAssembler(AssemblerConfig{})
	a.Add(Fragment{Sequence: seq(1), Text: "second", StartTime: 5, EndTime: 6})
	a.Add(Fragment{Sequence: seq(0), Text: "first", StartTime: 1, EndTime: 2})

	lines := a.Lines()
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2", len(lines))
	}
	if lines[0].Text != "first" || lines[1].Text != "second" {
		t.Errorf("lines = %v, want [first second]", texts(lines))
	}
}

func TestAssembler_DuplicateBySequenceIsNoOp(t *testing.T) {
	a := NewAssembler(AssemblerConfig{})
	a.Add(Fragment{Sequence: seq(4), Text: "original", StartTime: 1, EndTime: 2})

	// Same sequence with different text: the first accepted wins.
	if a.Add(Fragment{Sequence: seq(4), Text: "mutated", StartTime: 1, EndTime: 2}) {
		t.Error("Add() accepted a duplicate sequence")
	}

	lines := a.Lines()
	if len(lines) != 1 {
		t.Fatalf("len(lines) = %d, want 1", len(lines))
	}
	if lines[0].Text != "original" {
		t.Errorf("Text = %q, want %q (accepted fragments are immutable)", lines[0].Text, "original")
	}
}

func TestAssembler_DuplicateByStartTime(t *testing.T) {
	a := NewAssembler(AssemblerConfig{})
	a.Add(Fragment{Text: "untagged", StartTime: 2.5, EndTime: 3.5})

	if a.Add(Fragment{Text: "untagged again", StartTime: 2.5, EndTime: 3.6}) {
		t.Error("Add() accepted a duplicate start time without sequence")
	}
	if got := a.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}

func TestAssembler_SequenceZeroDistinctFromUntagged(t *testing.T) {
	a := NewAssembler(AssemblerConfig{})
	a.Add(Fragment{Sequence: seq(0), Text: "numbered", StartTime: 0, EndTime: 1})

	if !a.Add(Fragment{Text: "untagged", StartTime: 0, EndTime: 1}) {
		t.Error("fragment without sequence collided with sequence 0")
	}
}

func TestAssembler_MergeDisabledByDefault(t *testing.T) {
	a := NewAssembler(AssemblerConfig{})
	for _, f := range fragmentFixture() {
		a.Add(f)
	}

	lines := a.Lines()
	if len(lines) != 4 {
		t.Fatalf("len(lines) = %d, want 4 (one fragment per line)", len(lines))
	}
	for i, l := range lines {
		if l.Fragments != 1 {
			t.Errorf("lines[%d].Fragments = %d, want 1", i, l.Fragments)
		}
	}
}

func TestAssembler_MergePolicy(t *testing.T) {
	a := NewAssembler(AssemblerConfig{
		Merge: MergePolicy{Enabled: true, MaxGap: 500 * time.Millisecond, MaxChars: 200},
	})
	for _, f := range fragmentFixture() {
		a.Add(f)
	}

	// Gaps: 0.2s, 0.1s, 4.4s. The first three coalesce; the long pause
	// starts a new line.
	lines := a.Lines()
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2", len(lines))
	}
	if want := "good morning and welcome back to the show"; lines[0].Text != want {
		t.Errorf("lines[0].Text = %q, want %q", lines[0].Text, want)
	}
	if lines[0].Fragments != 3 {
		t.Errorf("lines[0].Fragments = %d, want 3", lines[0].Fragments)
	}
	if lines[0].StartTime != 0 || lines[0].EndTime != 4.6 {
		t.Errorf("lines[0] spans [%v, %v], want [0, 4.6]", lines[0].StartTime, lines[0].EndTime)
	}
	if lines[1].Text != "after a short break" {
		t.Errorf("lines[1].Text = %q, want %q", lines[1].Text, "after a short break")
	}
}

func TestAssembler_MergeRespectsMaxChars(t *testing.T) {
	a := NewAssembler(AssemblerConfig{
		Merge: MergePolicy{Enabled: true, MaxGap: time.Second, MaxChars: 20},
	})
	a.Add(Fragment{Sequence: seq(0), Text: "twelve chars", StartTime: 0, EndTime: 1})
	a.Add(Fragment{Sequence: seq(1), Text: "twelve chars", StartTime: 1.1, EndTime: 2})

	lines := a.Lines()
	if len(lines) != 2 {
		t.Errorf("len(lines) = %d, want 2 (merge would exceed the char cap)", len(lines))
	}
}

func TestAssembler_Completion(t *testing.T) {
	a := NewAssembler(AssemblerConfig{})
	a.Add(Fragment{Sequence: seq(0), Text: "only line", StartTime: 0, EndTime: 1})

	if a.Complete() {
		t.Error("Complete() = true before the completion event")
	}
	a.MarkComplete()
	if !a.Complete() {
		t.Error("Complete() = false after MarkComplete")
	}
}

func TestAssembler_UpdatesCoalesce(t *testing.T) {
	a := NewAssembler(AssemblerConfig{})
	for _, f := range fragmentFixture() {
		a.Add(f)
	}

	select {
	case <-a.Updates():
	default:
		t.Fatal("no update signal after adds")
	}
	select {
	case <-a.Updates():
		t.Error("update signals did not coalesce")
	default:
	}
}

func TestAssembler_Reset(t *testing.T) {
	a := NewAssembler(AssemblerConfig{})
	a.Add(Fragment{Sequence: seq(0), Text: "stale", StartTime: 0, EndTime: 1})
	a.MarkComplete()

	a.Reset()
	if got := a.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0 after Reset", got)
	}
	if a.Complete() {
		t.Error("Complete() = true after Reset")
	}
	if !a.Add(Fragment{Sequence: seq(0), Text: "fresh", StartTime: 0, EndTime: 1}) {
		t.Error("Add() rejected a fragment after Reset")
	}
}
