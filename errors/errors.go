package errors

import "errors"

// Common pipeline errors with actionable guidance.
var (
	// ErrPermissionDenied indicates microphone access was refused.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrDeviceFailure indicates the capture device failed mid-session.
	ErrDeviceFailure = errors.New("capture device failure")

	// ErrAlreadyRecording indicates a recording is already in progress.
	ErrAlreadyRecording = errors.New("recording already in progress")

	// ErrDeliveryFailed indicates a segment exhausted its delivery retries.
	ErrDeliveryFailed = errors.New("segment delivery failed")

	// ErrConnectionLost indicates the stream exhausted its reconnect attempts.
	ErrConnectionLost = errors.New("stream connection lost")

	// ErrProtocol indicates a malformed inbound stream message.
	ErrProtocol = errors.New("protocol error")

	// ErrSessionNotFound indicates the backend does not know the session.
	ErrSessionNotFound = errors.New("session not found")
)
