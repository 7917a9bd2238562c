package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics records the outcomes of the order-lifecycle operations.
type OrderMetrics struct {
	checkouts     *prometheus.CounterVec
	payments      *prometheus.CounterVec
	shipments     *prometheus.CounterVec
	refunds       prometheus.Counter
	cancellations prometheus.Counter
}

// NewOrderMetrics registers the order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_total",
		Help: "Payment callback verifications by outcome.",
	}, []string{"outcome"})
	shipments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shipments_total",
		Help: "Carrier operations by operation and outcome.",
	}, []string{"operation", "outcome"})
	refunds := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "refunds_total",
		Help: "Refunds issued.",
	})
	cancellations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "order_cancellations_total",
		Help: "Orders cancelled by customers.",
	})
	reg.MustRegister(checkouts, payments, shipments, refunds, cancellations)
	return &OrderMetrics{
		checkouts:     checkouts,
		payments:      payments,
		shipments:     shipments,
		refunds:       refunds,
		cancellations: cancellations,
	}
}

// ObserveCheckout counts one checkout attempt.
func (m *OrderMetrics) ObserveCheckout(outcome string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObservePayment counts one payment callback verification.
func (m *OrderMetrics) ObservePayment(outcome string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveShipment counts one carrier operation.
func (m *OrderMetrics) ObserveShipment(operation, outcome string) {
	if m == nil || m.shipments == nil {
		return
	}
	m.shipments.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// IncRefund counts one issued refund.
func (m *OrderMetrics) IncRefund() {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.Inc()
}

// IncCancellation counts one customer cancellation.
func (m *OrderMetrics) IncCancellation() {
	if m == nil || m.cancellations == nil {
		return
	}
	m.cancellations.Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return strings.ReplaceAll(value, " ", "_")
}
