// Package segment captures microphone audio as a gapless sequence of
// independently decodable WAV segments.
//
// Core types:
//   - Segment: One fixed-duration encoded chunk with a monotonic sequence
//   - Recorder: Dual-instance capture with handover at segment boundaries
//   - Device / Stream: Capture hardware abstraction (PortAudio in production)
//   - Encoder: PCM to WAV container encoding
//
// The recorder keeps two capture streams open at all times: the active one
// and a pre-armed standby. At each segment boundary the standby starts
// before the active stream is flushed, so no samples fall into the gap, and
// because every segment is encoded by a fresh Encoder, each payload carries
// its own complete container header.
//
// Example usage:
//
//	rec := segment.NewRecorder(segment.RecorderConfig{
//	    Device:          segment.NewPortAudioDevice(),
//	    SampleRate:      16000,
//	    Channels:        1,
//	    SegmentDuration: 10 * time.Second,
//	})
//	if err := rec.Start(ctx); err != nil {
//	    // errors.IsPermissionError / errors.IsDeviceError
//	}
//	for seg := range rec.Segments() {
//	    uploader.Submit(ctx, seg)
//	}
package segment
