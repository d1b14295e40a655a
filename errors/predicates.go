package errors

import (
	"errors"
	"strings"
)

// IsPermissionError checks if an error is microphone-permission-related.
func IsPermissionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrPermissionDenied) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "permission denied") ||
		strings.Contains(errStr, "not allowed") ||
		strings.Contains(errStr, "access denied")
}

// IsDeviceError checks if an error is capture-device-related.
func IsDeviceError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrDeviceFailure) || errors.Is(err, ErrAlreadyRecording)
}

// IsDeliveryError checks if an error is segment-delivery-related.
func IsDeliveryError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrDeliveryFailed)
}

// IsConnectionError checks if an error is connection-related.
// This includes TLS errors, timeouts, and network connectivity issues.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrConnectionLost) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	// Network connectivity
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "dial tcp") ||
		strings.Contains(errStr, "websocket: close") {
		return true
	}
	// TLS/certificate errors (consistent with WrapConnectionError)
	if strings.Contains(errStr, "certificate") ||
		strings.Contains(errStr, "tls") ||
		strings.Contains(errStr, "x509") {
		return true
	}
	// Timeout errors (consistent with WrapConnectionError)
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}
	return false
}

// IsProtocolError checks if an error came from a malformed inbound message.
func IsProtocolError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrProtocol)
}

// IsFatal reports whether an error must abort the session. Protocol errors
// are logged and dropped at the stream boundary; delivery errors park the
// segment in the cache. Everything else in the taxonomy ends the session.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrDeviceFailure) ||
		errors.Is(err, ErrConnectionLost)
}
