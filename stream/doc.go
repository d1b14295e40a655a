// Package stream maintains the long-lived bidirectional connection that
// carries transcript fragments from the backend during a recording session.
//
// A Client owns at most one websocket connection per session. On connect it
// sends a ping handshake to prime the backend's push loop, then keeps the
// connection alive with periodic heartbeats. Non-graceful closures trigger
// reconnection with doubling backoff up to a capped attempt count; exceeding
// the cap delivers a terminal ConnectionLost message to subscribers instead
// of retrying forever.
//
// Inbound traffic is decoded once at the boundary into the Message variants
// (TranscriptSegment, TranscriptComplete, PhaseChange, ErrorMessage,
// HeartbeatAck) and fanned out to subscribers registered with Subscribe.
// Unknown message types are logged and dropped.
package stream
