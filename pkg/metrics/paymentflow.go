package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentFlowMetrics records reconciliation and polling activity.
type PaymentFlowMetrics struct {
	reconciliations *prometheus.CounterVec
	pollTicks       *prometheus.CounterVec
	pollDuration    *prometheus.HistogramVec
	webhookEvents   *prometheus.CounterVec
}

// NewPaymentFlowMetrics registers the payment flow metrics on the provided registerer.
func NewPaymentFlowMetrics(reg prometheus.Registerer) *PaymentFlowMetrics {
	if reg == nil {
		return &PaymentFlowMetrics{}
	}
	reconciliations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_reconciliations_total",
		Help: "Reconciliation runs by outcome.",
	}, []string{"outcome"})
	pollTicks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_poll_ticks_total",
		Help: "Status poll ticks by result.",
	}, []string{"result"})
	pollDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_poll_tick_seconds",
		Help:    "Duration of individual status poll ticks.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Provider webhook deliveries by disposition.",
	}, []string{"disposition"})
	reg.MustRegister(reconciliations, pollTicks, pollDuration, webhookEvents)
	return &PaymentFlowMetrics{
		reconciliations: reconciliations,
		pollTicks:       pollTicks,
		pollDuration:    pollDuration,
		webhookEvents:   webhookEvents,
	}
}

// IncReconciliation counts a reconciliation outcome (confirmed, cancelled, duplicate, error).
func (m *PaymentFlowMetrics) IncReconciliation(outcome string) {
	if m == nil || m.reconciliations == nil {
		return
	}
	m.reconciliations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncPollTick counts a poll tick result (pending, terminal, claimed, error, timeout).
func (m *PaymentFlowMetrics) IncPollTick(result string) {
	if m == nil || m.pollTicks == nil {
		return
	}
	m.pollTicks.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObservePollDuration records how long a single poll tick took per method.
func (m *PaymentFlowMetrics) ObservePollDuration(method string, duration time.Duration) {
	if m == nil || m.pollDuration == nil {
		return
	}
	m.pollDuration.WithLabelValues(normalizeLabel(method)).Observe(duration.Seconds())
}

// IncWebhookEvent counts a webhook delivery disposition (processed, duplicate, invalid, error).
func (m *PaymentFlowMetrics) IncWebhookEvent(disposition string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(disposition)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
