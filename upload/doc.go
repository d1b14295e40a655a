// Package upload delivers captured segments to the backend at least once.
//
// Core types:
//   - Uploader: Fire-and-forget delivery with bounded retries
//   - Cache: Durable SQLite store for segments that exhausted their retries
//   - Outcome: Per-segment delivery result (delivered, retrying, cached)
//
// Every submitted segment ends up either delivered or cached, never silently
// dropped. Delivery is idempotent from the caller's perspective: the backend
// treats (sessionId, sequence) as a dedup key and a conflict response counts
// as success, so replaying a cached segment after an unacknowledged delivery
// is safe.
//
// Example usage:
//
//	cache, _ := upload.OpenCache(cachePath)
//	up := upload.NewUploader(upload.UploaderConfig{
//	    BaseURL:   settings.APIURL,
//	    Cache:     cache,
//	    SessionID: sessionID,
//	})
//	for seg := range rec.Segments() {
//	    up.Submit(ctx, seg)
//	}
//	up.Drain(ctx)
//	n, _ := up.RetryFailed(ctx) // replay cached segments later
package upload
