package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInMemoryRecorder(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	m.IncExplanation(OutcomeServed)
	m.IncExplanation(OutcomeServed)
	m.IncExplanation(OutcomeLimited)
	m.IncUsageDenied()
	m.ObserveCompletionDuration(1500 * time.Millisecond)
	m.IncWebhookEvent("customer.subscription.deleted", WebhookProcessed)
	m.IncSubscriptionWrite("webhook", true)
	m.IncSubscriptionWrite("sync", false)

	snap := m.Snapshot()
	if snap.Explanations[OutcomeServed] != 2 {
		t.Errorf("served = %d, want 2", snap.Explanations[OutcomeServed])
	}
	if snap.Explanations[OutcomeLimited] != 1 {
		t.Errorf("limited = %d, want 1", snap.Explanations[OutcomeLimited])
	}
	if snap.UsageDenied != 1 {
		t.Errorf("usage denied = %d, want 1", snap.UsageDenied)
	}
	if snap.CompletionDurationCount != 1 || snap.CompletionDurationTotalNs != int64(1500*time.Millisecond) {
		t.Errorf("completion duration = %d/%d", snap.CompletionDurationCount, snap.CompletionDurationTotalNs)
	}
	if snap.WebhookEvents["customer.subscription.deleted/processed"] != 1 {
		t.Errorf("webhook events = %v", snap.WebhookEvents)
	}
	if snap.SubscriptionWrites != 1 || snap.SubscriptionWritesStale != 1 {
		t.Errorf("subscription writes = %d applied, %d stale", snap.SubscriptionWrites, snap.SubscriptionWritesStale)
	}
}

func TestPrometheusRecorder(t *testing.T) {
	t.Parallel()

	p := NewPrometheus()
	p.IncExplanation(OutcomeFailed)
	p.IncUsageDenied()
	p.IncUsageDenied()
	p.IncSubscriptionWrite("cancel", true)

	if got := testutil.ToFloat64(p.explanations.WithLabelValues(OutcomeFailed)); got != 1 {
		t.Errorf("explanations{failed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.usageDenied); got != 2 {
		t.Errorf("usage denied = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.subscriptionWrites.WithLabelValues("cancel", "true")); got != 1 {
		t.Errorf("subscription writes = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "errmate_usage_denied_total 2") {
		t.Errorf("exposition missing usage counter:\n%s", body)
	}
}

func TestNoopRecorder(t *testing.T) {
	t.Parallel()

	r := NewNoop()
	r.IncExplanation(OutcomeServed)
	r.IncWebhookEvent("x", WebhookIgnored)
}
