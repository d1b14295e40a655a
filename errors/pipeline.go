package errors

import (
	"fmt"
	"strings"
)

// PipelineError wraps an error with user-friendly context and suggestions.
type PipelineError struct {
	// Err is the underlying error
	Err error

	// Message is a user-friendly description of what went wrong
	Message string

	// Suggestion is an actionable hint for the user
	Suggestion string

	// Details provides additional context (optional)
	Details string
}

func (e *PipelineError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Details != "" {
		sb.WriteString("\n")
		sb.WriteString(e.Details)
	}

	if e.Suggestion != "" {
		sb.WriteString("\n\n")
		sb.WriteString(e.Suggestion)
	}

	return sb.String()
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// ErrorMessenger provides customizable error messages.
// Implement this interface to customize suggestions for your application.
type ErrorMessenger interface {
	// PermissionDeniedMessage returns the message and suggestion for
	// microphone permission errors.
	PermissionDeniedMessage() (message, suggestion string)

	// DeviceFailureMessage returns the message and suggestion for capture
	// device failures.
	DeviceFailureMessage() (message, suggestion string)

	// DeliveryFailedMessage returns the message and suggestion shown once a
	// segment has been parked in the local cache.
	DeliveryFailedMessage() (message, suggestion string)

	// ConnectionLostMessage returns the message and suggestion for exhausted
	// reconnect attempts. The serverURL parameter is the URL that failed.
	ConnectionLostMessage(serverURL string) (message, suggestion string)

	// TimeoutErrorMessage returns the message and suggestion for timeouts.
	TimeoutErrorMessage(serverURL string) (message, suggestion string)
}

// DefaultMessenger provides default error messages.
type DefaultMessenger struct{}

func (m DefaultMessenger) PermissionDeniedMessage() (string, string) {
	return "Microphone access is blocked.",
		"Grant microphone permission in your system settings and start again."
}

func (m DefaultMessenger) DeviceFailureMessage() (string, string) {
	return "The audio device stopped responding.",
		"Check that your microphone is still connected, then start a new recording."
}

func (m DefaultMessenger) DeliveryFailedMessage() (string, string) {
	return "Some audio could not be uploaded and was saved locally.",
		"It will be retried automatically once the connection recovers."
}

func (m DefaultMessenger) ConnectionLostMessage(serverURL string) (string, string) {
	return fmt.Sprintf("Lost connection to the transcription service at %s", serverURL),
		"Check that:\n  - The service is reachable\n  - The URL is correct\n  - Your network connection is working"
}

func (m DefaultMessenger) TimeoutErrorMessage(serverURL string) (string, string) {
	return fmt.Sprintf("Connection to %s timed out", serverURL),
		"The service may be overloaded or unreachable.\nTry again in a moment."
}

// WrapConfig configures error wrapping behavior.
type WrapConfig struct {
	Messenger ErrorMessenger
}

// Option configures WrapConfig.
type Option func(*WrapConfig)

// WithMessenger sets a custom error messenger.
func WithMessenger(m ErrorMessenger) Option {
	return func(c *WrapConfig) {
		c.Messenger = m
	}
}

func getMessenger(opts []Option) ErrorMessenger {
	cfg := &WrapConfig{
		Messenger: DefaultMessenger{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg.Messenger
}

// WrapDeviceError wraps capture-device errors with helpful guidance.
func WrapDeviceError(err error, opts ...Option) error {
	if err == nil {
		return nil
	}

	errStr := strings.ToLower(err.Error())
	messenger := getMessenger(opts)

	if strings.Contains(errStr, "permission") || strings.Contains(errStr, "not allowed") ||
		strings.Contains(errStr, "denied") {
		msg, suggestion := messenger.PermissionDeniedMessage()
		return &PipelineError{
			Err:        ErrPermissionDenied,
			Message:    msg,
			Suggestion: suggestion,
		}
	}

	msg, suggestion := messenger.DeviceFailureMessage()
	return &PipelineError{
		Err:        ErrDeviceFailure,
		Message:    msg,
		Details:    err.Error(),
		Suggestion: suggestion,
	}
}

// WrapConnectionError wraps stream-connection errors with helpful guidance.
func WrapConnectionError(err error, serverURL string, opts ...Option) error {
	if err == nil {
		return nil
	}

	errStr := strings.ToLower(err.Error())
	messenger := getMessenger(opts)

	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		msg, suggestion := messenger.TimeoutErrorMessage(serverURL)
		return &PipelineError{
			Err:        ErrConnectionLost,
			Message:    msg,
			Suggestion: suggestion,
		}
	}

	msg, suggestion := messenger.ConnectionLostMessage(serverURL)
	return &PipelineError{
		Err:        ErrConnectionLost,
		Message:    msg,
		Details:    err.Error(),
		Suggestion: suggestion,
	}
}

// WrapDeliveryError wraps exhausted-delivery errors with helpful guidance.
func WrapDeliveryError(err error, opts ...Option) error {
	if err == nil {
		return nil
	}

	messenger := getMessenger(opts)
	msg, suggestion := messenger.DeliveryFailedMessage()
	return &PipelineError{
		Err:        ErrDeliveryFailed,
		Message:    msg,
		Details:    err.Error(),
		Suggestion: suggestion,
	}
}
