package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// DevGateway is an in-process gateway for development environments. It mints
// provider-shaped identifiers and never leaves the process; production wiring
// swaps in a real provider behind the same interface.
type DevGateway struct{}

// NewDevGateway returns the development gateway.
func NewDevGateway() *DevGateway {
	return &DevGateway{}
}

func (g *DevGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("gateway: non-positive amount %d", req.AmountCents)
	}
	return &Intent{GatewayOrderID: "order_" + uuid.NewString()[:13]}, nil
}

func (g *DevGateway) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if req.GatewayPaymentID == "" {
		return nil, fmt.Errorf("gateway: payment id required for refund")
	}
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("gateway: non-positive refund amount %d", req.AmountCents)
	}
	return &RefundResult{GatewayRefundID: "rfnd_" + uuid.NewString()[:13]}, nil
}
