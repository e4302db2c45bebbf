package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics tracks gateway calls, verification outcomes, webhook handling
// and swallowed notification failures.
type PaymentMetrics struct {
	gatewayDuration *prometheus.HistogramVec
	verifications   *prometheus.CounterVec
	webhooks        *prometheus.CounterVec
	notifyFailures  prometheus.Counter
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "gateway_request_duration_seconds",
		Help:      "Latency of payment gateway calls.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"provider", "operation", "outcome"})
	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "verifications_total",
		Help:      "Payment verification results by provider and status.",
	}, []string{"provider", "status"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "webhooks_total",
		Help:      "Provider webhook deliveries by outcome.",
	}, []string{"provider", "outcome"})
	notifyFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "notification_failures_total",
		Help:      "Customer notifications that failed and were swallowed.",
	})
	reg.MustRegister(gatewayDuration, verifications, webhooks, notifyFailures)
	return &PaymentMetrics{
		gatewayDuration: gatewayDuration,
		verifications:   verifications,
		webhooks:        webhooks,
		notifyFailures:  notifyFailures,
	}
}

// ObserveGateway records one gateway round trip.
func (m *PaymentMetrics) ObserveGateway(provider, operation string, err error, duration time.Duration) {
	if m == nil || m.gatewayDuration == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.gatewayDuration.WithLabelValues(label(provider), label(operation), outcome).Observe(duration.Seconds())
}

// IncVerification counts a verify result.
func (m *PaymentMetrics) IncVerification(provider, status string) {
	if m == nil || m.verifications == nil {
		return
	}
	m.verifications.WithLabelValues(label(provider), label(status)).Inc()
}

// IncWebhook counts a webhook delivery; outcome is applied, duplicate, ignored or error.
func (m *PaymentMetrics) IncWebhook(provider, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(label(provider), label(outcome)).Inc()
}

// IncNotificationFailure counts a swallowed customer notification error.
func (m *PaymentMetrics) IncNotificationFailure() {
	if m == nil || m.notifyFailures == nil {
		return
	}
	m.notifyFailures.Inc()
}
