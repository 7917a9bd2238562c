package shipping

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/acavero/shopline-backend/pkg/enums"
)

// DevCarrier is an in-process carrier for development environments. Bookings
// are fabricated locally; production wiring swaps in a real provider behind
// the same interface.
type DevCarrier struct{}

// NewDevCarrier returns the development carrier.
func NewDevCarrier() *DevCarrier {
	return &DevCarrier{}
}

func (c *DevCarrier) CreateShipment(ctx context.Context, req ShipmentRequest) (*Shipment, error) {
	if req.Parcel.Empty() {
		return nil, fmt.Errorf("carrier: empty parcel")
	}
	trackingID := "trk_" + uuid.NewString()[:13]
	return &Shipment{
		Provider:    "dev-carrier",
		TrackingID:  trackingID,
		TrackingURL: "https://track.dev-carrier.local/" + trackingID,
		LabelURL:    "https://labels.dev-carrier.local/" + trackingID + ".pdf",
	}, nil
}

func (c *DevCarrier) Track(ctx context.Context, trackingID string) (*TrackingUpdate, error) {
	if trackingID == "" {
		return nil, fmt.Errorf("carrier: tracking id required")
	}
	return &TrackingUpdate{Status: enums.ShippingStatusInTransit, Description: "in transit"}, nil
}

func (c *DevCarrier) RequestPickup(ctx context.Context, req PickupRequest) (*Pickup, error) {
	if req.TrackingID == "" {
		return nil, fmt.Errorf("carrier: tracking id required")
	}
	return &Pickup{PickupRequestID: "pkp_" + uuid.NewString()[:13]}, nil
}

func (c *DevCarrier) FetchLabel(ctx context.Context, trackingID string) ([]byte, error) {
	if trackingID == "" {
		return nil, fmt.Errorf("carrier: tracking id required")
	}
	return []byte("%PDF-1.4 dev-carrier label " + trackingID), nil
}
