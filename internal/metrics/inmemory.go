package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Explanations              map[string]uint64
	UsageDenied               uint64
	CompletionDurationCount   uint64
	CompletionDurationTotalNs int64
	WebhookEvents             map[string]uint64 // keyed by "type/outcome"
	SubscriptionWrites        uint64
	SubscriptionWritesStale   uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	usageDenied               uint64
	completionDurationCount   uint64
	completionDurationTotalNs int64
	subscriptionWrites        uint64
	subscriptionWritesStale   uint64

	mu            sync.Mutex
	explanations  map[string]uint64
	webhookEvents map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		explanations:  make(map[string]uint64),
		webhookEvents: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	explanations := make(map[string]uint64, len(m.explanations))
	for k, v := range m.explanations {
		explanations[k] = v
	}
	events := make(map[string]uint64, len(m.webhookEvents))
	for k, v := range m.webhookEvents {
		events[k] = v
	}
	m.mu.Unlock()

	return Snapshot{
		Explanations:              explanations,
		UsageDenied:               atomic.LoadUint64(&m.usageDenied),
		CompletionDurationCount:   atomic.LoadUint64(&m.completionDurationCount),
		CompletionDurationTotalNs: atomic.LoadInt64(&m.completionDurationTotalNs),
		WebhookEvents:             events,
		SubscriptionWrites:        atomic.LoadUint64(&m.subscriptionWrites),
		SubscriptionWritesStale:   atomic.LoadUint64(&m.subscriptionWritesStale),
	}
}

// IncExplanation counts an explanation request by outcome.
func (m *InMemoryRecorder) IncExplanation(outcome string) {
	m.mu.Lock()
	m.explanations[outcome]++
	m.mu.Unlock()
}

// IncUsageDenied counts a request refused by the daily limit.
func (m *InMemoryRecorder) IncUsageDenied() {
	atomic.AddUint64(&m.usageDenied, 1)
}

// ObserveCompletionDuration records completion latency.
func (m *InMemoryRecorder) ObserveCompletionDuration(duration time.Duration) {
	atomic.AddUint64(&m.completionDurationCount, 1)
	atomic.AddInt64(&m.completionDurationTotalNs, duration.Nanoseconds())
}

// IncWebhookEvent counts a webhook event.
func (m *InMemoryRecorder) IncWebhookEvent(eventType, outcome string) {
	m.mu.Lock()
	m.webhookEvents[eventType+"/"+outcome]++
	m.mu.Unlock()
}

// IncSubscriptionWrite counts a subscription state write attempt.
func (m *InMemoryRecorder) IncSubscriptionWrite(source string, applied bool) {
	if applied {
		atomic.AddUint64(&m.subscriptionWrites, 1)
		return
	}
	atomic.AddUint64(&m.subscriptionWritesStale, 1)
}
