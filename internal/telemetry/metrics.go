package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	ActionsTotal     *prometheus.CounterVec
	ActionDuration   *prometheus.HistogramVec
	TransitionsTotal *prometheus.CounterVec
	ProviderErrors   *prometheus.CounterVec
	WebhooksTotal    *prometheus.CounterVec
	RefundsInitiated prometheus.Counter
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// NewMetrics returns the process-wide Prometheus metrics, registering
// them on first call. The default registry rejects duplicates, so the
// set is created once and shared.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = newMetrics()
	})
	return metrics
}

func newMetrics() *Metrics {
	return &Metrics{
		ActionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_actions_total",
				Help: "Total number of shipment actions by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		ActionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fulfillment_action_duration_seconds",
				Help:    "Shipment action duration in seconds by action",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		TransitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_transitions_total",
				Help: "Total order status transitions by target status and source",
			},
			[]string{"status", "source"},
		),
		ProviderErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_provider_errors_total",
				Help: "Total logistics provider API errors by error type",
			},
			[]string{"error_type"},
		),
		WebhooksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_webhooks_total",
				Help: "Total courier webhook deliveries by outcome",
			},
			[]string{"outcome"},
		),
		RefundsInitiated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fulfillment_refunds_initiated_total",
				Help: "Total refunds initiated",
			},
		),
	}
}

// RecordAction records one shipment action with its outcome and timing.
func (m *Metrics) RecordAction(action, outcome string, duration float64) {
	m.ActionsTotal.WithLabelValues(action, outcome).Inc()
	m.ActionDuration.WithLabelValues(action).Observe(duration)
}

// RecordTransition records a status transition. Source names the caller
// path, admin, webhook or poll.
func (m *Metrics) RecordTransition(status, source string) {
	m.TransitionsTotal.WithLabelValues(status, source).Inc()
}

// RecordProviderError records a provider API error.
func (m *Metrics) RecordProviderError(errorType string) {
	m.ProviderErrors.WithLabelValues(errorType).Inc()
}

// RecordWebhook records one webhook delivery outcome.
func (m *Metrics) RecordWebhook(outcome string) {
	m.WebhooksTotal.WithLabelValues(outcome).Inc()
}
