package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProviderMetrics records outbound payment provider calls.
type ProviderMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewProviderMetrics registers the provider call metrics on the provided registerer.
func NewProviderMetrics(reg prometheus.Registerer) *ProviderMetrics {
	if reg == nil {
		return &ProviderMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_provider_requests_total",
		Help: "Payment provider HTTP calls by operation and status code.",
	}, []string{"operation", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_provider_request_duration_seconds",
		Help:    "Latency of payment provider HTTP calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(requests, duration)
	return &ProviderMetrics{requests: requests, duration: duration}
}

// Observe records one provider call. A zero status means a transport failure.
func (p *ProviderMetrics) Observe(operation string, status int, elapsed time.Duration) {
	if p == nil || p.requests == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	op := normalizeLabel(operation)
	p.requests.WithLabelValues(op, label).Inc()
	p.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// WebhookMetrics counts provider notifications by event and outcome.
type WebhookMetrics struct {
	events *prometheus.CounterVec
}

const (
	WebhookOutcomeApplied   = "applied"
	WebhookOutcomeNoop      = "noop"
	WebhookOutcomeDuplicate = "duplicate"
	WebhookOutcomeRejected  = "rejected"
	WebhookOutcomeFailed    = "failed"
)

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Provider webhook notifications by event and outcome.",
	}, []string{"event", "outcome"})
	reg.MustRegister(events)
	return &WebhookMetrics{events: events}
}

// Inc records the outcome for the named event.
func (w *WebhookMetrics) Inc(event, outcome string) {
	if w == nil || w.events == nil {
		return
	}
	w.events.WithLabelValues(normalizeLabel(event), normalizeLabel(outcome)).Inc()
}
