// Package scribecore implements the live transcription capture pipeline:
// continuous audio capture, at-least-once segment delivery, a long-lived
// transcript stream, and the session state machine tying them together.
//
// The package is organized into subpackages by domain:
//
//   - segment: Gapless audio capture and independently decodable WAV segments
//   - upload: Segment delivery with retries and a durable SQLite fallback cache
//   - stream: Bidirectional transcript stream with heartbeat and reconnect
//   - assemble: Ordering, deduplication, and merging of transcript fragments
//   - session: Recording lifecycle state machine and backend session client
//   - config: Hierarchical configuration resolution
//   - errors: Pipeline error taxonomy with user-facing messaging
//   - notify: Pipeline event notification (log, webhook)
//   - httpx: HTTP client utilities with retries
//   - testutil: Test utilities and fakes
//
// # Quick Start
//
//	import (
//	    "github.com/otoitsuki/scribecore/config"
//	    "github.com/otoitsuki/scribecore/session"
//	)
//
//	settings, _ := config.Load()
//	lc, _ := session.NewLifecycle(session.Config{Settings: settings})
//	if err := lc.Start(ctx); err != nil {
//	    // permission or device failure
//	}
//	// ... transcript lines arrive via lc.Assembler().Lines()
//	lc.Stop(ctx)
//
// Data flows one way while recording: the recorder emits segments to the
// uploader, the backend pushes fragments over the stream, and the assembler
// projects them into ordered lines. The session.Lifecycle is the only
// component that starts or stops the others.
//
// See individual package documentation for detailed usage.
package scribecore
