package enums

import "fmt"

// ShippingStatus mirrors the carrier-side state of a shipment.
type ShippingStatus string

const (
	ShippingStatusPending   ShippingStatus = "pending"
	ShippingStatusCreated   ShippingStatus = "created"
	ShippingStatusInTransit ShippingStatus = "in_transit"
	ShippingStatusDelivered ShippingStatus = "delivered"
	ShippingStatusFailed    ShippingStatus = "failed"
)

var validShippingStatuses = []ShippingStatus{
	ShippingStatusPending,
	ShippingStatusCreated,
	ShippingStatusInTransit,
	ShippingStatusDelivered,
	ShippingStatusFailed,
}

// String implements fmt.Stringer.
func (s ShippingStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ShippingStatus.
func (s ShippingStatus) IsValid() bool {
	for _, candidate := range validShippingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseShippingStatus converts raw carrier input into a ShippingStatus.
func ParseShippingStatus(value string) (ShippingStatus, error) {
	for _, candidate := range validShippingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid shipping status %q", value)
}
