// Package testutil provides test fakes for the capture pipeline.
package testutil

import (
	"errors"
	"sync"
	"time"

	"github.com/otoitsuki/scribecore/segment"
)

// FakeDevice is a scripted segment.Device producing deterministic PCM.
// Every sample across all streams carries an increasing counter value, so
// tests can account for captured audio exactly.
type FakeDevice struct {
	// BlockSize is the number of samples per emitted block.
	BlockSize int

	// Interval is the emission cadence of started streams.
	Interval time.Duration

	// FailOpenAfter makes Open fail once this many streams were opened.
	// Zero means Open never fails.
	FailOpenAfter int

	mu      sync.Mutex
	counter int16
	streams []*FakeStream
}

// NewFakeDevice creates a fake device with small, test-friendly defaults.
func NewFakeDevice() *FakeDevice {
	return &FakeDevice{
		BlockSize: 160,
		Interval:  2 * time.Millisecond,
	}
}

// Open implements segment.Device.
func (d *FakeDevice) Open(sampleRate, channels int) (segment.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailOpenAfter > 0 && len(d.streams) >= d.FailOpenAfter {
		return nil, errors.New("fake device: open refused")
	}

	s := &FakeStream{
		device:   d,
		interval: d.Interval,
		samples:  make(chan []int16, 256),
		stopCh:   make(chan struct{}),
	}
	d.streams = append(d.streams, s)
	return s, nil
}

// Streams returns every stream the device has opened, in order.
func (d *FakeDevice) Streams() []*FakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeStream(nil), d.streams...)
}

// SentSamples returns the total number of samples emitted on all streams.
func (d *FakeDevice) SentSamples() int {
	total := 0
	for _, s := range d.Streams() {
		total += s.Sent()
	}
	return total
}

func (d *FakeDevice) nextBlock() []int16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	block := make([]int16, d.BlockSize)
	for i := range block {
		block[i] = d.counter
		d.counter++
	}
	return block
}

// FakeStream is one scripted capture instance.
type FakeStream struct {
	device   *FakeDevice
	interval time.Duration
	samples  chan []int16

	mu       sync.Mutex
	started  bool
	stopped  bool
	closed   bool
	sent     int
	err      error
	stopOnce sync.Once
	stopCh   chan struct{}
}

// Start implements segment.Stream.
func (s *FakeStream) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("fake stream: started twice")
	}
	s.started = true
	s.mu.Unlock()

	go s.emitLoop()
	return nil
}

func (s *FakeStream) emitLoop() {
	defer close(s.samples)
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			block := s.device.nextBlock()
			select {
			case s.samples <- block:
				s.mu.Lock()
				s.sent += len(block)
				s.mu.Unlock()
			case <-s.stopCh:
				return
			}
		}
	}
}

// Samples implements segment.Stream.
func (s *FakeStream) Samples() <-chan []int16 {
	return s.samples
}

// Stop implements segment.Stream.
func (s *FakeStream) Stop() error {
	s.mu.Lock()
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	if started {
		s.stopOnce.Do(func() { close(s.stopCh) })
	} else {
		// Never started: close the channel directly so drains terminate.
		s.stopOnce.Do(func() { close(s.stopCh); close(s.samples) })
	}
	return nil
}

// Fail simulates a mid-capture device failure: the samples channel closes
// without a Stop and Err reports the cause.
func (s *FakeStream) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Err implements segment.Stream.
func (s *FakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	return s.err
}

// Close implements segment.Stream.
func (s *FakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Sent returns how many samples this stream emitted.
func (s *FakeStream) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// Started reports whether Start was called.
func (s *FakeStream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Closed reports whether Close was called.
func (s *FakeStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
