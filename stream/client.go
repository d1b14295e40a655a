package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	scriberr "github.com/otoitsuki/scribecore/errors"
	"github.com/otoitsuki/scribecore/notify"
)

// ConnState describes the socket lifecycle of a Client.
type ConnState string

// Connection states.
const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
)

// Defaults for ClientConfig fields left zero.
const (
	DefaultHeartbeatInterval    = 10 * time.Second
	DefaultReconnectBase        = 1 * time.Second
	DefaultReconnectMaxAttempts = 5
)

// Subscriber receives every decoded inbound Message. Subscribers run on
// the client's read goroutine and must not block.
type Subscriber func(Message)

// ClientConfig holds configuration for Client.
type ClientConfig struct {
	// StreamURL is the websocket endpoint base (e.g. "ws://host:8000/ws").
	// The session id is appended as a path element.
	StreamURL string

	// Dialer overrides the websocket dialer. Defaults to
	// websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// HeartbeatInterval is the period between outbound heartbeats. A
	// heartbeat that cannot be sent, or two intervals without an ack,
	// counts as connection loss.
	HeartbeatInterval time.Duration

	// ReconnectBase and ReconnectMaxAttempts tune the backoff schedule
	// after a non-graceful closure: baseDelay doubles per attempt until
	// the cap, then the connection is declared lost.
	ReconnectBase        time.Duration
	ReconnectMaxAttempts int

	// Notifier receives reconnect and connection-lost events. Optional.
	Notifier notify.Notifier

	// Logger receives connection diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client owns at most one live stream connection per session.
type Client struct {
	url         string
	dialer      *websocket.Dialer
	heartbeat   time.Duration
	backoffBase time.Duration
	maxAttempts int
	notifier    notify.Notifier
	logger      *slog.Logger

	mu          sync.Mutex
	state       ConnState
	sessionID   string
	conn        *websocket.Conn
	lastAck     time.Time
	attempt     int
	subscribers map[int]Subscriber
	nextSubID   int
	cancel      context.CancelFunc
	closing     bool

	writeMu sync.Mutex
}

// NewClient creates a disconnected Client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = DefaultReconnectBase
	}
	if cfg.ReconnectMaxAttempts <= 0 {
		cfg.ReconnectMaxAttempts = DefaultReconnectMaxAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		url:         cfg.StreamURL,
		dialer:      cfg.Dialer,
		heartbeat:   cfg.HeartbeatInterval,
		backoffBase: cfg.ReconnectBase,
		maxAttempts: cfg.ReconnectMaxAttempts,
		notifier:    cfg.Notifier,
		logger:      cfg.Logger,
		state:       StateDisconnected,
		subscribers: make(map[int]Subscriber),
	}
}

// State reports the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastHeartbeatAck reports when the backend last acknowledged a heartbeat.
// Zero until the first ack.
func (c *Client) LastHeartbeatAck() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAck
}

// Subscribe registers fn for every inbound Message and returns a disposer
// that unregisters it. Safe to call in any state; subscriptions survive
// reconnects.
func (c *Client) Subscribe(fn Subscriber) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

// Connect opens the stream for sessionID and returns once the socket is up
// and the handshake ping has been sent. Calling Connect while already
// connected to the same session is a no-op; connecting a second session is
// an error, the client carries one session at a time.
func (c *Client) Connect(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		same := c.sessionID == sessionID
		c.mu.Unlock()
		if same {
			return nil
		}
		return fmt.Errorf("stream busy with session %s", c.sessionID)
	}
	c.state = StateConnecting
	c.sessionID = sessionID
	c.closing = false
	c.attempt = 0
	c.mu.Unlock()

	conn, err := c.dial(ctx, sessionID)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.sessionID = ""
		c.mu.Unlock()
		return scriberr.WrapConnectionError(err, c.url)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.lastAck = time.Now()
	c.cancel = cancel
	c.mu.Unlock()

	go c.readLoop(runCtx, conn)
	go c.heartbeatLoop(runCtx, conn)
	return nil
}

// Disconnect closes the stream gracefully and suppresses any pending
// reconnect. Disconnecting a client that is not connected is a no-op.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	conn := c.conn
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		deadline := time.Now().Add(time.Second)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.writeMu.Unlock()
		conn.Close()
	}

	c.mu.Lock()
	c.state = StateDisconnected
	c.sessionID = ""
	c.conn = nil
	c.cancel = nil
	c.mu.Unlock()
	return nil
}

// dial opens the socket and sends the handshake ping that primes the
// backend's push loop.
func (c *Client) dial(ctx context.Context, sessionID string) (*websocket.Conn, error) {
	endpoint := fmt.Sprintf("%s/sessions/%s", c.url, sessionID)
	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	if err := c.writeJSON(conn, pingMessage{Type: "ping"}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	return conn, nil
}

func (c *Client) writeJSON(conn *websocket.Conn, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

// readLoop decodes and dispatches inbound frames until the connection
// fails or the client disconnects.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClosure(ctx, conn, err)
			return
		}

		msg, err := decodeMessage(data)
		if err != nil {
			if isUnknownType(err) {
				c.logger.Warn("dropping unknown stream message", "error", err)
			} else {
				c.logger.Warn("dropping malformed stream message", "error", err)
			}
			continue
		}

		if _, ok := msg.(HeartbeatAck); ok {
			c.mu.Lock()
			c.lastAck = time.Now()
			c.mu.Unlock()
		}
		c.dispatch(msg)
	}
}

// heartbeatLoop keeps the connection alive. A send failure or two missed
// acks closes the socket, handing recovery to the read loop.
func (c *Client) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		hb := heartbeatMessage{Type: "heartbeat", Timestamp: time.Now().UnixMilli()}
		if err := c.writeJSON(conn, hb); err != nil {
			c.logger.Warn("heartbeat send failed", "error", err)
			conn.Close()
			return
		}

		c.mu.Lock()
		silent := time.Since(c.lastAck)
		c.mu.Unlock()
		if silent > 2*c.heartbeat {
			c.logger.Warn("heartbeat acks missing, closing connection",
				"silent_for", silent)
			conn.Close()
			return
		}
	}
}

// handleClosure reacts to a broken read: graceful shutdowns stop here,
// anything else enters the reconnect schedule.
func (c *Client) handleClosure(ctx context.Context, conn *websocket.Conn, cause error) {
	conn.Close()

	c.mu.Lock()
	if c.closing || ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	sessionID := c.sessionID
	c.state = StateReconnecting
	c.conn = nil
	c.mu.Unlock()

	c.logger.Info("stream connection broken, reconnecting",
		"session_id", sessionID, "cause", cause)
	c.reconnect(ctx, sessionID, cause)
}

// reconnect retries the dial with doubling backoff. Exceeding the attempt
// cap delivers a terminal ConnectionLost to subscribers; it never retries
// past the cap.
func (c *Client) reconnect(ctx context.Context, sessionID string, cause error) {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		c.mu.Lock()
		c.attempt = attempt
		c.mu.Unlock()

		c.notifyEvent(ctx, notify.Event{
			Type:      notify.EventStreamReconnect,
			SessionID: sessionID,
			Message:   fmt.Sprintf("reconnect attempt %d/%d", attempt, c.maxAttempts),
			Severity:  notify.SeverityWarning,
		})

		wait := c.backoffBase << (attempt - 1)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		conn, err := c.dial(ctx, sessionID)
		if err != nil {
			c.logger.Warn("reconnect attempt failed",
				"attempt", attempt, "error", err)
			cause = err
			continue
		}

		c.mu.Lock()
		if c.closing {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.state = StateConnected
		c.lastAck = time.Now()
		c.attempt = 0
		c.mu.Unlock()

		c.logger.Info("stream reconnected", "session_id", sessionID, "attempt", attempt)
		go c.readLoop(ctx, conn)
		go c.heartbeatLoop(ctx, conn)
		return
	}

	err := scriberr.WrapConnectionError(
		fmt.Errorf("gave up after %d reconnect attempts: %w", c.maxAttempts, cause), c.url)

	c.mu.Lock()
	c.state = StateDisconnected
	c.sessionID = ""
	c.mu.Unlock()

	c.notifyEvent(ctx, notify.Event{
		Type:      notify.EventStreamLost,
		SessionID: sessionID,
		Message:   "stream connection lost, reconnect attempts exhausted",
		Severity:  notify.SeverityError,
	})
	c.dispatch(ConnectionLost{Err: err})
}

func (c *Client) dispatch(msg Message) {
	c.mu.Lock()
	subs := make([]Subscriber, 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(msg)
	}
}

func (c *Client) notifyEvent(ctx context.Context, event notify.Event) {
	if c.notifier == nil {
		return
	}
	event.Timestamp = time.Now()
	if err := c.notifier.Notify(ctx, event); err != nil {
		c.logger.Warn("notify failed", "event_type", event.Type, "error", err)
	}
}
