// Package metrics registers the Prometheus collectors for the payment gate.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the payment gate.
type Metrics struct {
	// Verification metrics
	VerificationsTotal   *prometheus.CounterVec
	VerificationDuration *prometheus.HistogramVec
	PaymentAmountTotal   *prometheus.CounterVec

	// Ledger RPC metrics
	RPCCallsTotal   *prometheus.CounterVec
	RPCCallDuration *prometheus.HistogramVec

	// Webhook delivery metrics
	WebhooksTotal       *prometheus.CounterVec
	WebhookRetriesTotal *prometheus.CounterVec
	WebhookDLQTotal     *prometheus.CounterVec
	WebhookDuration     *prometheus.HistogramVec
	WebhookQueueDepth   prometheus.Gauge

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal prometheus.Counter

	// Rate limiting metrics
	RateLimitHitsTotal *prometheus.CounterVec
}

// New creates and registers all collectors on the given registry
// (prometheus.DefaultRegisterer when nil).
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		VerificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latchpay_verifications_total",
				Help: "Payment verification outcomes by error code (ok for success)",
			},
			[]string{"outcome", "network"},
		),
		VerificationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "latchpay_verification_duration_seconds",
				Help:    "End-to-end payment verification latency",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"outcome"},
		),
		PaymentAmountTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latchpay_payment_amount_micro_total",
				Help: "Sum of verified payment amounts in token micro-units",
			},
			[]string{"network"},
		),

		RPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latchpay_rpc_calls_total",
				Help: "Ledger RPC calls by method and result",
			},
			[]string{"method", "result"},
		),
		RPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "latchpay_rpc_call_duration_seconds",
				Help:    "Ledger RPC call latency by method",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method"},
		),

		WebhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latchpay_webhooks_total",
				Help: "Webhook delivery attempts by event and outcome",
			},
			[]string{"event", "outcome"},
		),
		WebhookRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latchpay_webhook_retries_total",
				Help: "Webhook deliveries scheduled for retry",
			},
			[]string{"event"},
		),
		WebhookDLQTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latchpay_webhook_dlq_total",
				Help: "Webhook deliveries dropped after permanent failure or exhausted retries",
			},
			[]string{"event", "reason"},
		),
		WebhookDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "latchpay_webhook_duration_seconds",
				Help:    "Webhook POST latency",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"event"},
		),
		WebhookQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "latchpay_webhook_queue_depth",
				Help: "Entries currently waiting in the webhook queue",
			},
		),

		CacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latchpay_verification_cache_hits_total",
				Help: "Verification cache hits by cached verdict kind",
			},
			[]string{"verdict"},
		),
		CacheMissesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "latchpay_verification_cache_misses_total",
				Help: "Verification cache misses",
			},
		),

		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latchpay_rate_limit_hits_total",
				Help: "Requests rejected by rate limiting",
			},
			[]string{"scope"},
		),
	}
}

// ObserveVerification records one verification outcome.
func (m *Metrics) ObserveVerification(outcome, network string, d time.Duration) {
	if m == nil {
		return
	}
	m.VerificationsTotal.WithLabelValues(outcome, network).Inc()
	m.VerificationDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveRPCCall records one ledger RPC call.
func (m *Metrics) ObserveRPCCall(method string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RPCCallsTotal.WithLabelValues(method, result).Inc()
	m.RPCCallDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveWebhook records one webhook delivery attempt.
func (m *Metrics) ObserveWebhook(event, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues(event, outcome).Inc()
	m.WebhookDuration.WithLabelValues(event).Observe(d.Seconds())
}
