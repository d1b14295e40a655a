package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	scriberr "github.com/otoitsuki/scribecore/errors"
)

// Message is one decoded inbound stream message. The concrete type
// identifies the variant; switch on it to dispatch.
type Message interface {
	messageType() string
}

// TranscriptSegment carries one transcript fragment pushed by the backend.
// Sequence is nil when the backend does not number its fragments; consumers
// then fall back to the time range for identity.
type TranscriptSegment struct {
	Text       string
	StartTime  float64
	EndTime    float64
	Sequence   *uint64
	Confidence float64
}

// TranscriptComplete signals that the backend has emitted every fragment
// for the session and no more will follow.
type TranscriptComplete struct{}

// PhaseChange reports a backend-side phase transition ("waiting" or
// "active").
type PhaseChange struct {
	Phase string
}

// ErrorMessage carries a backend-reported error.
type ErrorMessage struct {
	ErrorType    string
	ErrorMessage string
}

// HeartbeatAck acknowledges a heartbeat sent by the client.
type HeartbeatAck struct{}

// ConnectionLost is synthesized locally when reconnection attempts are
// exhausted. It is the terminal message on a session's stream.
type ConnectionLost struct {
	Err error
}

func (TranscriptSegment) messageType() string  { return "transcript_segment" }
func (TranscriptComplete) messageType() string { return "transcript_complete" }
func (PhaseChange) messageType() string        { return "phase" }
func (ErrorMessage) messageType() string       { return "error" }
func (HeartbeatAck) messageType() string       { return "heartbeat_ack" }
func (ConnectionLost) messageType() string     { return "connection_lost" }

// envelope is the raw wire shape shared by every inbound message; only the
// fields matching the type tag are meaningful.
type envelope struct {
	Type         string  `json:"type"`
	Text         string  `json:"text"`
	StartTime    float64 `json:"start_time"`
	EndTime      float64 `json:"end_time"`
	Sequence     *uint64 `json:"sequence"`
	Confidence   float64 `json:"confidence"`
	Phase        string  `json:"phase"`
	ErrorType    string  `json:"error_type"`
	ErrorMessage string  `json:"error_message"`
}

// errUnknownType reports an inbound type tag this client does not handle.
// The caller logs and drops the message.
type errUnknownType struct {
	typeTag string
}

func (e *errUnknownType) Error() string {
	return fmt.Sprintf("unknown message type %q", e.typeTag)
}

func isUnknownType(err error) bool {
	var ut *errUnknownType
	return errors.As(err, &ut)
}

// decodeMessage parses one inbound frame into its Message variant.
// Malformed JSON wraps ErrProtocol; an unrecognized type tag returns an
// errUnknownType, which the reader drops without severing the connection.
func decodeMessage(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", scriberr.ErrProtocol, err)
	}

	switch env.Type {
	case "transcript_segment":
		return TranscriptSegment{
			Text:       env.Text,
			StartTime:  env.StartTime,
			EndTime:    env.EndTime,
			Sequence:   env.Sequence,
			Confidence: env.Confidence,
		}, nil
	case "transcript_complete":
		return TranscriptComplete{}, nil
	case "phase":
		if env.Phase != "waiting" && env.Phase != "active" {
			return nil, fmt.Errorf("%w: unexpected phase %q", scriberr.ErrProtocol, env.Phase)
		}
		return PhaseChange{Phase: env.Phase}, nil
	case "error":
		return ErrorMessage{ErrorType: env.ErrorType, ErrorMessage: env.ErrorMessage}, nil
	case "heartbeat_ack":
		return HeartbeatAck{}, nil
	default:
		return nil, &errUnknownType{typeTag: env.Type}
	}
}

// pingMessage is the handshake sent right after the socket opens; the
// backend starts its push loop on receipt.
type pingMessage struct {
	Type string `json:"type"`
}

// heartbeatMessage is sent every HeartbeatInterval while connected.
type heartbeatMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}
