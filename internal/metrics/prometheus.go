package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder exports metrics through a private registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	explanations       *prometheus.CounterVec
	usageDenied        prometheus.Counter
	completionDuration prometheus.Histogram
	webhookEvents      *prometheus.CounterVec
	subscriptionWrites *prometheus.CounterVec
}

// NewPrometheus registers the application collectors plus the Go and
// process collectors on a fresh registry.
func NewPrometheus() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		explanations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errmate_explanations_total",
				Help: "Explanation requests by outcome",
			},
			[]string{"outcome"},
		),
		usageDenied: factory.NewCounter(prometheus.CounterOpts{
			Name: "errmate_usage_denied_total",
			Help: "Requests refused by the free daily limit",
		}),
		completionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "errmate_completion_duration_seconds",
			Help:    "Latency of completion API calls",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
		}),
		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errmate_webhook_events_total",
				Help: "Billing webhook events by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		subscriptionWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errmate_subscription_writes_total",
				Help: "Subscription state writes by source and whether they applied",
			},
			[]string{"source", "applied"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *PrometheusRecorder) IncExplanation(outcome string) {
	p.explanations.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncUsageDenied() {
	p.usageDenied.Inc()
}

func (p *PrometheusRecorder) ObserveCompletionDuration(duration time.Duration) {
	p.completionDuration.Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncWebhookEvent(eventType, outcome string) {
	p.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (p *PrometheusRecorder) IncSubscriptionWrite(source string, applied bool) {
	p.subscriptionWrites.WithLabelValues(source, strconv.FormatBool(applied)).Inc()
}
