package segment

// Device opens PCM capture streams. Implementations wrap the actual audio
// backend; tests use a scripted fake.
type Device interface {
	// Open acquires a capture stream for the given PCM format without
	// starting it. The stream buffers nothing until Start is called, which
	// is what lets the recorder pre-arm a standby instance.
	Open(sampleRate, channels int) (Stream, error)
}

// Stream is one capture instance. A stream moves through exactly one
// Open → Start → Stop → Close cycle; it is never restarted.
type Stream interface {
	// Start begins capturing. Captured sample blocks become available on
	// the Samples channel.
	Start() error

	// Samples returns the channel of captured PCM blocks. The channel is
	// closed after Stop has flushed the remaining buffered audio, or when
	// the device fails mid-capture (check Err in that case).
	Samples() <-chan []int16

	// Stop halts capture and flushes buffered samples to the Samples
	// channel before closing it.
	Stop() error

	// Err returns the device failure that closed the Samples channel,
	// or nil after a clean Stop.
	Err() error

	// Close releases the device handle. Idempotent; safe to call after
	// Stop, and also without Stop during teardown.
	Close() error
}
