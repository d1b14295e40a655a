package segment

import "time"

// Segment is one fixed-duration, independently decodable chunk of captured
// audio. Sequence numbers are gapless and strictly increasing within a
// session, starting at 0. The payload is a complete WAV container that does
// not depend on any previous segment's header.
type Segment struct {
	Sequence   uint64        `json:"sequence"`
	Payload    []byte        `json:"-"`
	CapturedAt time.Time     `json:"capturedAt"`
	Duration   time.Duration `json:"duration"`
}

// ContentType is the MIME type of segment payloads.
const ContentType = "audio/wav"
