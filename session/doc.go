// Package session owns the recording lifecycle: the phase state machine,
// the backend session API client, and the orchestration of the capture,
// upload, stream, and assembly components.
//
// Lifecycle is the only component allowed to start or stop the recorder
// and the stream client. All component failures funnel into it; it alone
// converts them into phase transitions. The phase graph:
//
//	idle → waiting → active → processing → finished
//
// with any phase able to fall to error on an unrecoverable failure, after
// which the machine returns to idle. Stopping from waiting or active moves
// to processing, where the machine waits for the backend's completion
// event or, failing that, a bounded timeout before finalizing with
// whatever transcript arrived.
package session
