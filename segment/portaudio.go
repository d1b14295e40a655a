package segment

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// framesPerBuffer is the PortAudio read granularity: 1024 frames is 64ms at
// 16kHz, small enough to keep the handover flush quick.
const framesPerBuffer = 1024

// PortAudioDevice opens capture streams on the system default input device.
// The PortAudio runtime is initialized lazily on first Open and terminated
// by Terminate.
type PortAudioDevice struct {
	initOnce sync.Once
	initErr  error
}

// NewPortAudioDevice creates a device backed by PortAudio.
func NewPortAudioDevice() *PortAudioDevice {
	return &PortAudioDevice{}
}

// Open implements Device.
func (d *PortAudioDevice) Open(sampleRate, channels int) (Stream, error) {
	d.initOnce.Do(func() { d.initErr = portaudio.Initialize() })
	if d.initErr != nil {
		return nil, fmt.Errorf("portaudio init: %w", d.initErr)
	}

	s := &paStream{
		buf:     make([]int16, framesPerBuffer*channels),
		samples: make(chan []int16, 64),
	}
	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(sampleRate), framesPerBuffer, s.buf)
	if err != nil {
		return nil, fmt.Errorf("open capture stream: %w", err)
	}
	s.stream = stream
	return s, nil
}

// Terminate shuts down the PortAudio runtime. Call once all streams from
// this device are closed.
func (d *PortAudioDevice) Terminate() error {
	return portaudio.Terminate()
}

type paStream struct {
	stream  *portaudio.Stream
	buf     []int16
	samples chan []int16

	mu       sync.Mutex
	stopping bool
	closed   bool
	err      error
}

func (s *paStream) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	go s.readLoop()
	return nil
}

func (s *paStream) readLoop() {
	defer close(s.samples)
	for {
		if err := s.stream.Read(); err != nil {
			s.mu.Lock()
			if !s.stopping {
				s.err = err
			}
			s.mu.Unlock()
			return
		}
		block := make([]int16, len(s.buf))
		copy(block, s.buf)
		s.samples <- block
	}
}

func (s *paStream) Samples() <-chan []int16 {
	return s.samples
}

func (s *paStream) Stop() error {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("stop capture: %w", err)
	}
	return nil
}

func (s *paStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *paStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.stream.Close()
}
