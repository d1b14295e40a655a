package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/otoitsuki/scribecore/assemble"
	"github.com/otoitsuki/scribecore/config"
	scriberr "github.com/otoitsuki/scribecore/errors"
	"github.com/otoitsuki/scribecore/notify"
	"github.com/otoitsuki/scribecore/segment"
	"github.com/otoitsuki/scribecore/stream"
	"github.com/otoitsuki/scribecore/upload"
)

// Config holds configuration for Lifecycle. Settings is required; every
// other field has a production default and exists for injection in tests.
type Config struct {
	Settings *config.Settings

	// Device opens capture streams. Defaults to the PortAudio device.
	Device segment.Device

	// API talks to the recording-session endpoints. Defaults to a client
	// on Settings.APIURL.
	API *APIClient

	// Cache holds undelivered segments. Defaults to a SQLite cache at
	// Settings.CachePath, owned (and closed) by the Lifecycle.
	Cache *upload.Cache

	// Stream carries transcript fragments. Defaults to a client on
	// Settings.StreamURL.
	Stream *stream.Client

	// Notifier receives pipeline events. Defaults to a log notifier,
	// joined by a webhook notifier when Settings.WebhookURL is set.
	Notifier notify.Notifier

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Lifecycle is the recording state machine. It owns the recorder, the
// uploader, the stream client, and the assembler, and is the only
// component that starts or stops them.
type Lifecycle struct {
	settings *config.Settings
	device   segment.Device
	api      *APIClient
	cache    *upload.Cache
	ownCache bool
	stream   *stream.Client
	notifier notify.Notifier
	logger   *slog.Logger

	mu        sync.Mutex
	phase     Phase
	session   *RecordingSession
	recorder  *segment.Recorder
	uploader  *upload.Uploader
	assembler *assemble.Assembler
	lastErr   error
	starting  bool
	stopped   bool
	unsub     func()
	pumpDone  chan struct{}
	procCh    chan struct{}

	phases chan Phase
}

// NewLifecycle creates an idle Lifecycle.
func NewLifecycle(cfg Config) (*Lifecycle, error) {
	if cfg.Settings == nil {
		return nil, fmt.Errorf("session: Settings is required")
	}
	s := cfg.Settings

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Device == nil {
		cfg.Device = segment.NewPortAudioDevice()
	}
	if cfg.API == nil {
		cfg.API = NewAPIClient(APIClientConfig{BaseURL: s.APIURL, Logger: cfg.Logger})
	}

	ownCache := false
	if cfg.Cache == nil {
		cache, err := upload.OpenCache(s.CachePath)
		if err != nil {
			return nil, fmt.Errorf("open segment cache: %w", err)
		}
		cfg.Cache = cache
		ownCache = true
	}

	if cfg.Notifier == nil {
		notifiers := []notify.Notifier{notify.NewLogNotifier(cfg.Logger)}
		if s.WebhookURL != "" {
			notifiers = append(notifiers, notify.NewWebhookNotifier(s.WebhookURL, nil))
		}
		cfg.Notifier = notify.NewMultiNotifier(notifiers...)
	}

	if cfg.Stream == nil {
		cfg.Stream = stream.NewClient(stream.ClientConfig{
			StreamURL:            s.StreamURL,
			HeartbeatInterval:    s.HeartbeatInterval,
			ReconnectBase:        s.ReconnectBaseDelay,
			ReconnectMaxAttempts: s.ReconnectMaxAttempts,
			Notifier:             cfg.Notifier,
			Logger:               cfg.Logger,
		})
	}

	lc := &Lifecycle{
		settings: s,
		device:   cfg.Device,
		api:      cfg.API,
		cache:    cfg.Cache,
		ownCache: ownCache,
		stream:   cfg.Stream,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		phase:    PhaseIdle,
		phases:   make(chan Phase, 16),
	}
	lc.assembler = assemble.NewAssembler(assemble.AssemblerConfig{
		Merge: assemble.MergePolicy{
			Enabled:  s.MergeEnabled,
			MaxGap:   s.MergeMaxGap,
			MaxChars: s.MergeMaxChars,
		},
		Logger: cfg.Logger,
	})
	return lc, nil
}

// Phase reports the current session phase.
func (lc *Lifecycle) Phase() Phase {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.phase
}

// Phases returns a buffered channel of phase transitions, in order.
// Slow consumers lose the oldest transitions, never the ordering.
func (lc *Lifecycle) Phases() <-chan Phase {
	return lc.phases
}

// Session returns the current (or most recent) recording session, nil
// before the first Start.
func (lc *Lifecycle) Session() *RecordingSession {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.session
}

// Assembler exposes the transcript assembler for reading lines and
// subscribing to updates. Callers must not feed it fragments directly.
func (lc *Lifecycle) Assembler() *assemble.Assembler {
	return lc.assembler
}

// LastError reports the failure that forced the most recent error phase,
// nil if none.
func (lc *Lifecycle) LastError() error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.lastErr
}

// Start begins a new recording session: it registers the session with the
// backend, connects the stream, and starts capture. Valid from idle (or a
// finished or errored previous session); starting while recording returns
// ErrAlreadyRecording.
func (lc *Lifecycle) Start(ctx context.Context) error {
	lc.mu.Lock()
	if lc.starting || (lc.phase != PhaseIdle && lc.phase != PhaseFinished) {
		lc.mu.Unlock()
		return fmt.Errorf("%w: phase is %s", scriberr.ErrAlreadyRecording, lc.phase)
	}
	lc.starting = true
	lc.mu.Unlock()
	defer func() {
		lc.mu.Lock()
		lc.starting = false
		lc.mu.Unlock()
	}()

	sess, err := lc.api.Create(ctx, lc.settings.Language)
	if err != nil {
		return err
	}

	uploader := upload.NewUploader(upload.UploaderConfig{
		BaseURL:    lc.api.client.BaseURL(),
		Cache:      lc.cache,
		SessionID:  sess.ID,
		MaxRetries: lc.settings.UploadMaxRetries,
		RetryBase:  lc.settings.UploadRetryBase,
		Notifier:   lc.notifier,
		Logger:     lc.logger,
	})
	recorder := segment.NewRecorder(segment.RecorderConfig{
		Device:          lc.device,
		SampleRate:      lc.settings.SampleRate,
		Channels:        lc.settings.Channels,
		SegmentDuration: lc.settings.SegmentDuration,
		Logger:          lc.logger,
	})

	if err := lc.stream.Connect(ctx, sess.ID); err != nil {
		lc.discardQuietly(ctx, sess.ID)
		return err
	}
	if err := recorder.Start(ctx); err != nil {
		lc.stream.Disconnect(ctx)
		lc.discardQuietly(ctx, sess.ID)
		return err
	}

	msgCh := make(chan stream.Message, 64)
	unsub := lc.stream.Subscribe(func(msg stream.Message) {
		select {
		case msgCh <- msg:
		default:
			lc.logger.Warn("stream message dropped, pump behind")
		}
	})

	lc.mu.Lock()
	lc.session = sess
	lc.recorder = recorder
	lc.uploader = uploader
	lc.unsub = unsub
	lc.lastErr = nil
	lc.stopped = false
	lc.pumpDone = make(chan struct{})
	lc.procCh = make(chan struct{})
	lc.mu.Unlock()

	lc.assembler.Reset()
	lc.setPhase(ctx, PhaseWaiting)
	lc.notifyEvent(ctx, notify.Event{
		Type:      notify.EventSessionStarted,
		SessionID: sess.ID,
		Message:   "recording session started",
		Severity:  notify.SeverityInfo,
	})

	go lc.pump(sess.ID, recorder, uploader, msgCh, lc.procCh, lc.pumpDone)
	return nil
}

// Stop ends capture and moves to processing. The stream stays connected
// so trailing fragments can arrive; the machine reaches finished when the
// completion event lands or the completion timeout elapses.
func (lc *Lifecycle) Stop(ctx context.Context) error {
	lc.mu.Lock()
	if !lc.phase.Recording() || lc.stopped {
		phase := lc.phase
		lc.mu.Unlock()
		return fmt.Errorf("no recording to stop: phase is %s", phase)
	}
	lc.stopped = true
	recorder := lc.recorder
	procCh := lc.procCh
	lc.mu.Unlock()

	if err := recorder.Stop(ctx); err != nil {
		return err
	}
	lc.setPhase(ctx, PhaseProcessing)
	close(procCh) // wakes the pump to arm the completion fallback
	return nil
}

// RetryFailed replays this session's cached segments. Returns how many
// were delivered.
func (lc *Lifecycle) RetryFailed(ctx context.Context) (int, error) {
	lc.mu.Lock()
	uploader := lc.uploader
	lc.mu.Unlock()
	if uploader == nil {
		return 0, fmt.Errorf("%w: no session has been started", scriberr.ErrSessionNotFound)
	}
	return uploader.RetryFailed(ctx)
}

// Backlog reports undelivered segments for the current session: in-flight
// plus cached.
func (lc *Lifecycle) Backlog() (int, error) {
	lc.mu.Lock()
	uploader := lc.uploader
	lc.mu.Unlock()
	if uploader == nil {
		return 0, nil
	}
	return uploader.Backlog()
}

// Discard deletes a session from the backend and purges its cached
// segments. Cached segments never outlive an explicitly discarded session.
func (lc *Lifecycle) Discard(ctx context.Context, sessionID string) error {
	if err := lc.api.Delete(ctx, sessionID); err != nil && !errors.Is(err, scriberr.ErrSessionNotFound) {
		return err
	}
	return lc.cache.PurgeSession(sessionID)
}

// discardQuietly removes a session that never got off the ground.
func (lc *Lifecycle) discardQuietly(ctx context.Context, sessionID string) {
	if err := lc.api.Delete(ctx, sessionID); err != nil {
		lc.logger.Debug("discard unstarted session", "session_id", sessionID, "error", err)
	}
}

// Close releases resources. The Lifecycle must be idle, finished, or
// errored.
func (lc *Lifecycle) Close() error {
	lc.mu.Lock()
	if lc.phase.Recording() || lc.phase == PhaseProcessing {
		lc.mu.Unlock()
		return fmt.Errorf("close while %s", lc.phase)
	}
	lc.mu.Unlock()

	if lc.ownCache {
		return lc.cache.Close()
	}
	return nil
}

// pump is the session event loop: it forwards captured segments to the
// uploader, routes stream messages, and drives phase transitions until
// the session finishes or fails.
func (lc *Lifecycle) pump(sessionID string, recorder *segment.Recorder, uploader *upload.Uploader, msgCh <-chan stream.Message, procCh <-chan struct{}, done chan struct{}) {
	defer close(done)
	ctx := context.Background()

	segCh := recorder.Segments()
	var timeoutCh <-chan time.Time

	for {
		select {
		case <-procCh:
			// Stop moved us to processing; arm the completion fallback.
			procCh = nil
			timer := time.NewTimer(lc.settings.CompletionTimeout)
			defer timer.Stop()
			timeoutCh = timer.C

			// The completion event may have beaten the stop signal.
			if lc.assembler.Complete() {
				lc.finish(ctx, sessionID, recorder, uploader)
				return
			}

		case seg, ok := <-segCh:
			if !ok {
				segCh = nil
				if err := recorder.Err(); err != nil {
					lc.fatal(ctx, sessionID, recorder, uploader, err)
					return
				}
				continue
			}
			lc.notifyEvent(ctx, notify.Event{
				Type:      notify.EventSegmentCaptured,
				SessionID: sessionID,
				Sequence:  seg.Sequence,
				Message:   "segment captured",
				Severity:  notify.SeverityInfo,
			})
			uploader.Submit(ctx, seg)

		case msg := <-msgCh:
			if finished := lc.handleMessage(ctx, sessionID, recorder, uploader, msg); finished {
				return
			}

		case <-timeoutCh:
			// No completion event arrived; finalize with the transcript
			// received so far.
			lc.logger.Warn("completion timeout elapsed, finalizing",
				"session_id", sessionID,
				"fragments", lc.assembler.Len())
			lc.finish(ctx, sessionID, recorder, uploader)
			return
		}
	}
}

// handleMessage routes one inbound stream message. Reports true when the
// session reached a terminal phase.
func (lc *Lifecycle) handleMessage(ctx context.Context, sessionID string, recorder *segment.Recorder, uploader *upload.Uploader, msg stream.Message) bool {
	switch m := msg.(type) {
	case stream.TranscriptSegment:
		if m.Text == "" {
			return false
		}
		accepted := lc.assembler.Add(assemble.Fragment{
			Sequence:   m.Sequence,
			Text:       m.Text,
			StartTime:  m.StartTime,
			EndTime:    m.EndTime,
			Confidence: m.Confidence,
		})
		if accepted && lc.Phase() == PhaseWaiting {
			lc.setPhase(ctx, PhaseActive)
		}

	case stream.TranscriptComplete:
		lc.assembler.MarkComplete()
		if lc.Phase() == PhaseProcessing {
			lc.finish(ctx, sessionID, recorder, uploader)
			return true
		}

	case stream.PhaseChange:
		lc.logger.Info("backend phase notification",
			"session_id", sessionID, "backend_phase", m.Phase)

	case stream.ErrorMessage:
		lc.logger.Warn("backend error",
			"session_id", sessionID,
			"error_type", m.ErrorType,
			"error_message", m.ErrorMessage)

	case stream.HeartbeatAck:
		// Tracked by the stream client.

	case stream.ConnectionLost:
		lc.fatal(ctx, sessionID, recorder, uploader, m.Err)
		return true
	}
	return false
}

// finish finalizes a session gracefully: drains pending deliveries, tells
// the backend, disconnects the stream, and lands in finished.
func (lc *Lifecycle) finish(ctx context.Context, sessionID string, recorder *segment.Recorder, uploader *upload.Uploader) {
	drainCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := uploader.Drain(drainCtx); err != nil {
		lc.logger.Warn("uploader drain interrupted", "session_id", sessionID, "error", err)
	}

	if err := lc.api.Finish(drainCtx, sessionID); err != nil {
		lc.logger.Warn("finish session on backend", "session_id", sessionID, "error", err)
	}
	lc.teardown(ctx, recorder)

	lc.setPhase(ctx, PhaseFinished)
	lc.notifyEvent(ctx, notify.Event{
		Type:      notify.EventSessionFinished,
		SessionID: sessionID,
		Message:   "recording session finished",
		Severity:  notify.SeverityInfo,
	})
}

// fatal handles an unrecoverable component failure: surface the error,
// pass through the error phase, and return to idle. Cached segments are
// left in place for replay.
func (lc *Lifecycle) fatal(ctx context.Context, sessionID string, recorder *segment.Recorder, uploader *upload.Uploader, cause error) {
	lc.mu.Lock()
	lc.lastErr = cause
	lc.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	recorder.Stop(stopCtx)
	uploader.Drain(stopCtx)
	lc.teardown(ctx, recorder)

	lc.setPhase(ctx, PhaseError)
	lc.notifyEvent(ctx, notify.Event{
		Type:      notify.EventSessionFailed,
		SessionID: sessionID,
		Message:   cause.Error(),
		Severity:  notify.SeverityError,
	})
	lc.setPhase(ctx, PhaseIdle)
}

func (lc *Lifecycle) teardown(ctx context.Context, recorder *segment.Recorder) {
	lc.mu.Lock()
	unsub := lc.unsub
	lc.unsub = nil
	lc.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	lc.stream.Disconnect(ctx)
	recorder.Cleanup()
}

func (lc *Lifecycle) setPhase(ctx context.Context, next Phase) {
	lc.mu.Lock()
	prev := lc.phase
	if prev == next {
		lc.mu.Unlock()
		return
	}
	lc.phase = next
	sessionID := ""
	if lc.session != nil {
		sessionID = lc.session.ID
	}
	lc.mu.Unlock()

	lc.logger.Info("phase transition",
		"session_id", sessionID, "from", prev.String(), "to", next.String())

	select {
	case lc.phases <- next:
	default:
		// Keep ordering for slow consumers by dropping the oldest.
		select {
		case <-lc.phases:
		default:
		}
		select {
		case lc.phases <- next:
		default:
		}
	}

	lc.notifyEvent(ctx, notify.Event{
		Type:      notify.EventPhaseChanged,
		SessionID: sessionID,
		Message:   fmt.Sprintf("%s -> %s", prev, next),
		Severity:  notify.SeverityInfo,
	})
}

func (lc *Lifecycle) notifyEvent(ctx context.Context, event notify.Event) {
	if lc.notifier == nil {
		return
	}
	event.Timestamp = time.Now()
	if err := lc.notifier.Notify(ctx, event); err != nil {
		lc.logger.Warn("notify failed", "event_type", event.Type, "error", err)
	}
}
