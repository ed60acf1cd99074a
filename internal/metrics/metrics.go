// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Explanation outcomes.
const (
	OutcomeServed       = "served"
	OutcomeOutOfContext = "out_of_context"
	OutcomeLimited      = "limited"
	OutcomeFailed       = "failed"
)

// Webhook outcomes.
const (
	WebhookProcessed = "processed"
	WebhookDuplicate = "duplicate"
	WebhookIgnored   = "ignored"
	WebhookFailed    = "failed"
)

// Recorder captures metric events for the application.
type Recorder interface {
	// Explanation pipeline
	IncExplanation(outcome string)
	IncUsageDenied()
	ObserveCompletionDuration(duration time.Duration)

	// Billing reconciliation
	IncWebhookEvent(eventType, outcome string)
	IncSubscriptionWrite(source string, applied bool)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
