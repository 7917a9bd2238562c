package orders

import (
	"time"

	"github.com/acavero/shopline-backend/pkg/enums"
)

// Fulfillment transitions are monotonic; cancellation is only reachable before
// the order leaves the warehouse. Shipped/delivered orders are reversed via
// refund, never via cancel.
var fulfillmentTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:   {enums.OrderStatusPaid, enums.OrderStatusCancelled},
	enums.OrderStatusPaid:      {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:   {enums.OrderStatusDelivered},
	enums.OrderStatusDelivered: {},
	enums.OrderStatusCancelled: {},
}

var paymentTransitions = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentStatusPending:  {enums.PaymentStatusPaid, enums.PaymentStatusFailed},
	enums.PaymentStatusPaid:     {enums.PaymentStatusRefunded},
	enums.PaymentStatusFailed:   {},
	enums.PaymentStatusRefunded: {},
}

// CanTransition reports whether the fulfillment status may move from -> to.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range fulfillmentTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// CanTransitionPayment reports whether the payment status may move from -> to.
func CanTransitionPayment(from, to enums.PaymentStatus) bool {
	for _, candidate := range paymentTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// WithinCancelWindow is a pure function of the order's creation time; customer
// cancellation is only permitted inside the window.
func WithinCancelWindow(createdAt, now time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	return now.Sub(createdAt) <= window
}
