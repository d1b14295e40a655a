package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	scriberr "github.com/otoitsuki/scribecore/errors"
)

// DefaultSegmentDuration is the target duration of each captured segment.
const DefaultSegmentDuration = 10 * time.Second

// RecorderConfig holds configuration for Recorder.
type RecorderConfig struct {
	// Device opens capture streams. Required.
	Device Device

	// SampleRate and Channels describe the PCM capture format.
	SampleRate int
	Channels   int

	// SegmentDuration is the target segment length.
	// Defaults to DefaultSegmentDuration.
	SegmentDuration time.Duration

	// Logger receives capture diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Recorder produces a continuous sequence of independently decodable audio
// segments with gapless, strictly increasing sequence numbers.
//
// It keeps two capture streams open: the active one and a pre-armed standby.
// At each segment boundary the standby is started before the active stream
// is stopped and flushed, bounding the handover gap to the time between the
// two calls.
type Recorder struct {
	device     Device
	enc        *Encoder
	segDur     time.Duration
	sampleRate int
	channels   int
	logger     *slog.Logger

	mu       sync.Mutex
	running  bool
	err      error
	stopOnce *sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	segCh    chan Segment
}

// NewRecorder creates a recorder. Capture does not begin until Start.
func NewRecorder(cfg RecorderConfig) *Recorder {
	if cfg.SegmentDuration <= 0 {
		cfg.SegmentDuration = DefaultSegmentDuration
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Recorder{
		device:     cfg.Device,
		enc:        NewEncoder(cfg.SampleRate, cfg.Channels),
		segDur:     cfg.SegmentDuration,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		logger:     cfg.Logger,
	}
}

// Start acquires the device and begins emitting segments on Segments.
// Only one recording may be active at a time; a second Start returns
// ErrAlreadyRecording.
func (r *Recorder) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return scriberr.ErrAlreadyRecording
	}
	r.running = true
	r.err = nil
	r.stopOnce = &sync.Once{}
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.segCh = make(chan Segment, 16)
	r.mu.Unlock()

	active, err := r.device.Open(r.sampleRate, r.channels)
	if err != nil {
		return r.failStart(scriberr.WrapDeviceError(err))
	}
	standby, err := r.device.Open(r.sampleRate, r.channels)
	if err != nil {
		active.Close()
		return r.failStart(scriberr.WrapDeviceError(err))
	}
	if err := active.Start(); err != nil {
		active.Close()
		standby.Close()
		return r.failStart(scriberr.WrapDeviceError(err))
	}

	go r.run(active, standby)
	return nil
}

func (r *Recorder) failStart(err error) error {
	r.mu.Lock()
	r.running = false
	r.err = err
	r.mu.Unlock()
	close(r.segCh)
	close(r.doneCh)
	return err
}

// Segments returns the channel of completed segments. Valid after Start.
// The channel closes once recording has stopped or the device has failed;
// check Err afterwards to distinguish the two.
func (r *Recorder) Segments() <-chan Segment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.segCh
}

// Err returns the terminal capture error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Stop flushes the current segment, emits it, and releases the device.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopCh == nil {
		r.mu.Unlock()
		return nil
	}
	stopOnce, doneCh := r.stopOnce, r.doneCh
	stopCh := r.stopCh
	r.mu.Unlock()

	stopOnce.Do(func() { close(stopCh) })

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cleanup releases all device handles unconditionally.
func (r *Recorder) Cleanup() {
	r.mu.Lock()
	if r.stopCh == nil {
		r.mu.Unlock()
		return
	}
	stopOnce, doneCh := r.stopOnce, r.doneCh
	stopCh := r.stopCh
	r.mu.Unlock()

	stopOnce.Do(func() { close(stopCh) })
	<-doneCh
}

func (r *Recorder) run(active, standby Stream) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.segDur)
	defer ticker.Stop()

	var (
		seq   uint64
		pcm   []int16
		start = time.Now()
	)

	fail := func(err error) {
		active.Close()
		standby.Close()
		r.mu.Lock()
		r.err = scriberr.WrapDeviceError(err)
		r.running = false
		r.mu.Unlock()
		close(r.segCh)
	}

	for {
		select {
		case block, ok := <-active.Samples():
			if !ok {
				// Closed without Stop means the device died mid-capture.
				err := active.Err()
				if err == nil {
					err = errors.New("capture stream ended unexpectedly")
				}
				fail(err)
				return
			}
			pcm = append(pcm, block...)

		case <-ticker.C:
			// Handover: start the standby before flushing the active
			// stream so no samples fall into the gap.
			if err := standby.Start(); err != nil {
				fail(err)
				return
			}
			rest, err := drain(active)
			active.Close()
			active = standby // promoted; fail closes it via the closure
			if err != nil {
				fail(err)
				return
			}
			pcm = append(pcm, rest...)

			if err := r.emit(seq, pcm, start); err != nil {
				fail(err)
				return
			}
			seq++
			pcm = nil
			start = time.Now()

			next, err := r.device.Open(r.sampleRate, r.channels)
			if err != nil {
				fail(err)
				return
			}
			standby = next

		case <-r.stopCh:
			standby.Close()
			rest, err := drain(active)
			active.Close()
			if err != nil {
				r.logger.Warn("flush on stop", "error", err)
			} else {
				pcm = append(pcm, rest...)
			}
			if len(pcm) > 0 {
				if err := r.emit(seq, pcm, start); err != nil {
					r.logger.Error("encode final segment", "sequence", seq, "error", err)
				}
			}
			r.mu.Lock()
			r.running = false
			r.mu.Unlock()
			close(r.segCh)
			return
		}
	}
}

// drain stops a stream and collects whatever it had buffered.
func drain(s Stream) ([]int16, error) {
	if err := s.Stop(); err != nil {
		return nil, err
	}
	var rest []int16
	for block := range s.Samples() {
		rest = append(rest, block...)
	}
	return rest, s.Err()
}

func (r *Recorder) emit(seq uint64, pcm []int16, start time.Time) error {
	payload, err := r.enc.Encode(pcm)
	if err != nil {
		return fmt.Errorf("segment %d: %w", seq, err)
	}

	frames := len(pcm) / r.channels
	r.segCh <- Segment{
		Sequence:   seq,
		Payload:    payload,
		CapturedAt: start,
		Duration:   time.Duration(frames) * time.Second / time.Duration(r.sampleRate),
	}
	return nil
}
