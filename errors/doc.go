// Package errors provides the pipeline error taxonomy with user-friendly messaging.
//
// Core types:
//   - PipelineError: Wraps errors with message, suggestion, and details
//   - ErrorMessenger: Interface for customizing error messages
//
// Sentinel errors for common scenarios:
//   - ErrPermissionDenied: Microphone access was refused
//   - ErrDeviceFailure: The capture device failed mid-session
//   - ErrAlreadyRecording: A recording is already in progress
//   - ErrDeliveryFailed: A segment exhausted its delivery retries
//   - ErrConnectionLost: The transcript stream exhausted its reconnect attempts
//   - ErrProtocol: The backend sent a malformed message
//   - ErrSessionNotFound: The backend does not know the session
//
// Example usage:
//
//	// Wrap a device error with default messages
//	if err := rec.Start(ctx); err != nil {
//	    return errors.WrapDeviceError(err)
//	}
//
//	// Check error types
//	if errors.IsConnectionError(err) {
//	    // Handle stream loss
//	}
//
// Transient failures (delivery, connection) are retried inside their owning
// components and only surface through these types once retries are exhausted.
// IsFatal reports whether an error must abort the session rather than be
// absorbed by another retry loop.
package errors
