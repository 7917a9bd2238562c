package enums

import "fmt"

// OutboxEventType names every domain event the outbox can carry.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order.created"
	EventOrderPaid          OutboxEventType = "order.paid"
	EventOrderPaymentFailed OutboxEventType = "order.payment_failed"
	EventOrderCancelled     OutboxEventType = "order.cancelled"
	EventOrderShipped       OutboxEventType = "order.shipped"
	EventOrderDelivered     OutboxEventType = "order.delivered"
	EventOrderRefunded      OutboxEventType = "order.refunded"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderPaid,
	EventOrderPaymentFailed,
	EventOrderCancelled,
	EventOrderShipped,
	EventOrderDelivered,
	EventOrderRefunded,
}

// String implements fmt.Stringer.
func (t OutboxEventType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known OutboxEventType.
func (t OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into an OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder OutboxAggregateType = "order"
)

// String implements fmt.Stringer.
func (t OutboxAggregateType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known OutboxAggregateType.
func (t OutboxAggregateType) IsValid() bool {
	return t == AggregateOrder
}
