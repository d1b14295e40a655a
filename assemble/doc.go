// Package assemble reconciles transcript fragments that arrive out of
// order, duplicated, or interleaved across reconnects into one ordered,
// display-ready transcript.
//
// Fragments are deduplicated by sequence number when the backend provides
// one, otherwise by start time, and kept sorted by start time. Accepted
// fragments are immutable; a duplicate arrival is a no-op. An optional
// merge policy can coalesce adjacent fragments into single lines, but it
// is off by default because merging discards per-utterance timestamps.
package assemble
