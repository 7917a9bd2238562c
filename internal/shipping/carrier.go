package shipping

import (
	"context"

	"github.com/google/uuid"

	"github.com/acavero/shopline-backend/pkg/enums"
	"github.com/acavero/shopline-backend/pkg/types"
)

// ShipmentRequest asks the carrier to book one parcel for one order.
type ShipmentRequest struct {
	OrderID            uuid.UUID
	Address            types.Address
	Parcel             types.Parcel
	DeclaredValueCents int
}

// Shipment is the carrier's booking record.
type Shipment struct {
	Provider    string
	TrackingID  string
	TrackingURL string
	LabelURL    string
}

// TrackingUpdate is the carrier's latest word on a shipment.
type TrackingUpdate struct {
	Status      enums.ShippingStatus
	Description string
}

// PickupRequest schedules a warehouse pickup for a booked shipment.
type PickupRequest struct {
	TrackingID string
	Site       string
}

// Pickup is the carrier's pickup confirmation.
type Pickup struct {
	PickupRequestID string
}

// Carrier abstracts the shipping provider. Implementations own their own
// transport; callers bound every call with a context deadline.
type Carrier interface {
	CreateShipment(ctx context.Context, req ShipmentRequest) (*Shipment, error)
	Track(ctx context.Context, trackingID string) (*TrackingUpdate, error)
	RequestPickup(ctx context.Context, req PickupRequest) (*Pickup, error)
	FetchLabel(ctx context.Context, trackingID string) ([]byte, error)
}
