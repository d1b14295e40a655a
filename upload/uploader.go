package upload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/otoitsuki/scribecore/httpx"
	"github.com/otoitsuki/scribecore/notify"
	"github.com/otoitsuki/scribecore/segment"
)

// Status tags a segment's delivery outcome.
type Status string

// Delivery outcome constants.
const (
	StatusDelivered Status = "delivered"
	StatusRetrying  Status = "retrying"
	StatusCached    Status = "cached"
)

// Outcome reports the result of one delivery step for a segment.
type Outcome struct {
	Sequence uint64
	Status   Status
	Attempt  int
	Err      error
}

// DefaultMaxRetries bounds delivery attempts before a segment is cached.
const DefaultMaxRetries = 3

// DefaultRetryBase is the initial delivery backoff delay; it doubles per
// attempt.
const DefaultRetryBase = 1 * time.Second

// UploaderConfig holds configuration for Uploader.
type UploaderConfig struct {
	// BaseURL is the segment endpoint base (e.g. "http://host/api").
	// Ignored when Client is set.
	BaseURL string

	// Client overrides the HTTP client. When nil, a client without
	// internal retries is built from BaseURL; the uploader owns the
	// retry policy.
	Client *httpx.Client

	// Cache receives segments that exhausted their retries. Required.
	Cache *Cache

	// SessionID scopes deliveries and the cache partition. Required.
	SessionID string

	// MaxRetries and RetryBase tune the backoff schedule.
	MaxRetries int
	RetryBase  time.Duration

	// Notifier receives delivered/cached events. Optional.
	Notifier notify.Notifier

	// Logger receives delivery diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Uploader delivers segments at least once without blocking capture.
// Each submitted segment is attempted asynchronously with doubling backoff;
// exhausted retries park the segment in the durable cache for later replay.
type Uploader struct {
	client     *httpx.Client
	cache      *Cache
	sessionID  string
	maxRetries int
	retryBase  time.Duration
	notifier   notify.Notifier
	logger     *slog.Logger

	wg       sync.WaitGroup
	outcomes chan Outcome

	mu       sync.Mutex
	inflight int
}

// NewUploader creates an uploader for one session.
func NewUploader(cfg UploaderConfig) *Uploader {
	if cfg.Client == nil {
		cfg.Client = httpx.NewClient(httpx.ClientConfig{
			BaseURL:     cfg.BaseURL,
			ServiceName: "upload",
			MaxRetries:  1, // the uploader owns the retry policy
		})
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = DefaultRetryBase
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Uploader{
		client:     cfg.Client,
		cache:      cfg.Cache,
		sessionID:  cfg.SessionID,
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBase,
		notifier:   cfg.Notifier,
		logger:     cfg.Logger,
		outcomes:   make(chan Outcome, 64),
	}
}

// Outcomes returns the channel of delivery outcomes. Consumers that fall
// behind miss outcomes rather than stalling delivery.
func (u *Uploader) Outcomes() <-chan Outcome {
	return u.outcomes
}

// Backlog returns how many segments are still awaiting delivery: in-flight
// attempts plus cached segments for this session.
func (u *Uploader) Backlog() (int, error) {
	u.mu.Lock()
	inflight := u.inflight
	u.mu.Unlock()

	cached, err := u.cache.Count(u.sessionID)
	if err != nil {
		return inflight, err
	}
	return inflight + cached, nil
}

// Submit schedules an asynchronous delivery attempt for seg and returns
// immediately. The segment ends up either delivered or cached.
func (u *Uploader) Submit(ctx context.Context, seg segment.Segment) {
	u.mu.Lock()
	u.inflight++
	u.mu.Unlock()

	u.wg.Add(1)
	go u.deliver(ctx, seg)
}

// Drain waits until all in-flight deliveries have settled (delivered or
// cached), or the context expires.
func (u *Uploader) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		u.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (u *Uploader) deliver(ctx context.Context, seg segment.Segment) {
	defer u.wg.Done()
	defer func() {
		u.mu.Lock()
		u.inflight--
		u.mu.Unlock()
	}()

	path := fmt.Sprintf("/sessions/%s/segments/%d", u.sessionID, seg.Sequence)

	var lastErr error
	for attempt := 1; attempt <= u.maxRetries; attempt++ {
		err := u.client.PutRaw(ctx, path, segment.ContentType, seg.Payload)
		if err == nil || httpx.IsConflict(err) {
			// A conflict means the backend already holds this sequence:
			// an earlier attempt landed without its ack.
			u.emit(Outcome{Sequence: seg.Sequence, Status: StatusDelivered, Attempt: attempt})
			u.notifyEvent(ctx, notify.Event{
				Type:      notify.EventSegmentDelivered,
				SessionID: u.sessionID,
				Sequence:  seg.Sequence,
				Message:   "segment delivered",
				Severity:  notify.SeverityInfo,
			})
			return
		}
		lastErr = err

		if attempt == u.maxRetries {
			break
		}
		u.emit(Outcome{Sequence: seg.Sequence, Status: StatusRetrying, Attempt: attempt, Err: err})

		wait := u.retryBase << (attempt - 1)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			// Stopping cancels the backoff but never drops the segment.
			u.park(context.WithoutCancel(ctx), seg, attempt, ctx.Err())
			return
		}
	}

	u.park(ctx, seg, u.maxRetries, lastErr)
}

// park persists a segment that could not be delivered.
func (u *Uploader) park(ctx context.Context, seg segment.Segment, attempts int, cause error) {
	cs := CachedSegment{
		SessionID:      u.sessionID,
		Sequence:       seg.Sequence,
		Payload:        seg.Payload,
		FirstFailureAt: time.Now(),
		RetryCount:     attempts,
	}
	if err := u.cache.Put(cs); err != nil {
		u.logger.Error("cache segment", "sequence", seg.Sequence, "error", err)
	}

	u.emit(Outcome{Sequence: seg.Sequence, Status: StatusCached, Attempt: attempts, Err: cause})
	u.notifyEvent(ctx, notify.Event{
		Type:      notify.EventSegmentCached,
		SessionID: u.sessionID,
		Sequence:  seg.Sequence,
		Message:   "segment parked in local cache",
		Severity:  notify.SeverityWarning,
	})
}

// RetryFailed replays every cached segment for this session. Each success
// removes the corresponding cache entry. Returns how many were delivered.
func (u *Uploader) RetryFailed(ctx context.Context) (int, error) {
	cached, err := u.cache.ForSession(u.sessionID)
	if err != nil {
		return 0, err
	}

	delivered := 0
	var lastErr error
	for _, cs := range cached {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}

		path := fmt.Sprintf("/sessions/%s/segments/%d", u.sessionID, cs.Sequence)
		err := u.client.PutRaw(ctx, path, segment.ContentType, cs.Payload)
		if err != nil && !httpx.IsConflict(err) {
			lastErr = err
			cs.RetryCount++
			if perr := u.cache.Put(cs); perr != nil {
				u.logger.Error("update cached segment", "sequence", cs.Sequence, "error", perr)
			}
			continue
		}

		if err := u.cache.Delete(u.sessionID, cs.Sequence); err != nil {
			u.logger.Error("remove cached segment", "sequence", cs.Sequence, "error", err)
		}
		delivered++
		u.emit(Outcome{Sequence: cs.Sequence, Status: StatusDelivered, Attempt: cs.RetryCount + 1})
	}

	if delivered == len(cached) && len(cached) > 0 {
		u.notifyEvent(ctx, notify.Event{
			Type:      notify.EventBacklogDrained,
			SessionID: u.sessionID,
			Message:   fmt.Sprintf("replayed %d cached segments", delivered),
			Severity:  notify.SeverityInfo,
		})
	}

	return delivered, lastErr
}

func (u *Uploader) emit(o Outcome) {
	select {
	case u.outcomes <- o:
	default:
		u.logger.Debug("outcome dropped, consumer behind",
			"sequence", o.Sequence, "status", o.Status)
	}
}

func (u *Uploader) notifyEvent(ctx context.Context, event notify.Event) {
	if u.notifier == nil {
		return
	}
	event.Timestamp = time.Now()
	if err := u.notifier.Notify(ctx, event); err != nil {
		u.logger.Warn("notify failed", "event_type", event.Type, "error", err)
	}
}
