// Package notify provides notification services for pipeline events.
//
// Core types:
//   - Notifier: Interface for sending notifications
//   - Event: Notification event with type, message, and metadata
//   - EventType: Type of event (captured, delivered, cached, etc.)
//
// Implementations:
//   - WebhookNotifier: Sends notifications to generic webhooks
//   - LogNotifier: Logs notifications (for testing/debugging)
//   - MultiNotifier: Combines multiple notifiers
//   - NopNotifier: No-op notifier (for testing)
//
// Example usage:
//
//	notifier := notify.NewMultiNotifier(
//	    notify.NewLogNotifier(nil),
//	    notify.NewWebhookNotifier(webhookURL, nil),
//	)
//	err := notifier.Notify(ctx, notify.Event{
//	    Type:      notify.EventSegmentCached,
//	    SessionID: sessionID,
//	    Message:   "segment parked in local cache",
//	})
//
// Recoverable situations (a delivery retry, a brief reconnect) are reported
// at SeverityInfo or SeverityWarning so the UI can stay low-key; only
// exhausted retries and permission failures carry SeverityError.
package notify
