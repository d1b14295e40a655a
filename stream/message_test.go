package stream

import (
	"testing"

	scriberr "github.com/otoitsuki/scribecore/errors"
)

func TestDecodeMessage_TranscriptSegment(t *testing.T) {
	raw := `{"type":"transcript_segment","text":"hello there","start_time":1.5,"end_time":3.25,"sequence":7,"confidence":0.93}`

	msg, err := decodeMessage([]byte(raw))
	if err != nil {
		t.Fatalf("decodeMessage() error = %v", err)
	}

	seg, ok := msg.(TranscriptSegment)
	if !ok {
		t.Fatalf("decoded %T, want TranscriptSegment", msg)
	}
	if seg.Text != "hello there" {
		t.Errorf("Text = %q, want %q", seg.Text, "hello there")
	}
	if seg.StartTime != 1.5 || seg.EndTime != 3.25 {
		t.Errorf("time range = [%v, %v], want [1.5, 3.25]", seg.StartTime, seg.EndTime)
	}
	if seg.Sequence == nil || *seg.Sequence != 7 {
		t.Errorf("Sequence = %v, want 7", seg.Sequence)
	}
	if seg.Confidence != 0.93 {
		t.Errorf("Confidence = %v, want 0.93", seg.Confidence)
	}
}

func TestDecodeMessage_SegmentWithoutSequence(t *testing.T) {
	raw := `{"type":"transcript_segment","text":"untagged","start_time":0,"end_time":1}`

	msg, err := decodeMessage([]byte(raw))
	if err != nil {
		t.Fatalf("decodeMessage() error = %v", err)
	}
	seg := msg.(TranscriptSegment)
	if seg.Sequence != nil {
		t.Errorf("Sequence = %v, want nil when absent", *seg.Sequence)
	}
}

func TestDecodeMessage_Variants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Message
	}{
		{"complete", `{"type":"transcript_complete"}`, TranscriptComplete{}},
		{"phase waiting", `{"type":"phase","phase":"waiting"}`, PhaseChange{Phase: "waiting"}},
		{"phase active", `{"type":"phase","phase":"active"}`, PhaseChange{Phase: "active"}},
		{"error", `{"type":"error","error_type":"backend","error_message":"model crashed"}`,
			ErrorMessage{ErrorType: "backend", ErrorMessage: "model crashed"}},
		{"heartbeat ack", `{"type":"heartbeat_ack"}`, HeartbeatAck{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeMessage([]byte(tt.raw))
			if err != nil {
				t.Fatalf("decodeMessage() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("decodeMessage() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecodeMessage_UnknownType(t *testing.T) {
	_, err := decodeMessage([]byte(`{"type":"telemetry","cpu":0.4}`))
	if err == nil {
		t.Fatal("decodeMessage() error = nil, want unknown-type error")
	}
	if !isUnknownType(err) {
		t.Errorf("isUnknownType(%v) = false, want true", err)
	}
	if scriberr.IsProtocolError(err) {
		t.Errorf("unknown type classified as protocol error: %v", err)
	}
}

func TestDecodeMessage_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"truncated json", `{"type":"transcript_segm`},
		{"not json", `plain text`},
		{"bad phase", `{"type":"phase","phase":"paused"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeMessage([]byte(tt.raw))
			if err == nil {
				t.Fatal("decodeMessage() error = nil, want protocol error")
			}
			if !scriberr.IsProtocolError(err) {
				t.Errorf("IsProtocolError(%v) = false, want true", err)
			}
		})
	}
}
