package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncExplanation(outcome string)                    {}
func (n *NoopRecorder) IncUsageDenied()                                  {}
func (n *NoopRecorder) ObserveCompletionDuration(duration time.Duration) {}
func (n *NoopRecorder) IncWebhookEvent(eventType, outcome string)        {}
func (n *NoopRecorder) IncSubscriptionWrite(source string, applied bool) {}
