package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestPaymentMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)

	m.IncVerification("mpesa", "completed")
	m.IncVerification("mpesa", "completed")
	m.IncWebhook("pesapal", "duplicate")
	m.IncNotificationFailure()
	m.ObserveGateway("mpesa", "initialize", errors.New("boom"), 120*time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	require.Equal(t, 2.0, counter(t, mfs, "tableside_payments_verifications_total", map[string]string{"provider": "mpesa", "status": "completed"}))
	require.Equal(t, 1.0, counter(t, mfs, "tableside_payments_webhooks_total", map[string]string{"provider": "pesapal", "outcome": "duplicate"}))
	require.Equal(t, 1.0, counter(t, mfs, "tableside_orders_notification_failures_total", nil))

	gateway := series(t, mfs, "tableside_payments_gateway_request_duration_seconds", map[string]string{"operation": "initialize", "outcome": "error"})
	require.InDelta(t, 0.12, gateway.GetHistogram().GetSampleSum(), 1e-9)
}

func TestNilPaymentMetricsAreNoops(t *testing.T) {
	var m *PaymentMetrics
	m.IncVerification("mpesa", "failed")
	m.IncWebhook("mpesa", "applied")
	m.IncNotificationFailure()
	m.ObserveGateway("mpesa", "verify", nil, time.Second)
	NewPaymentMetrics(nil).IncWebhook("", "applied")
}
