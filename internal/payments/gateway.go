package payments

import (
	"context"

	"github.com/google/uuid"

	"github.com/acavero/shopline-backend/pkg/enums"
)

// IntentRequest asks the gateway to open a payment for one order.
type IntentRequest struct {
	OrderID     uuid.UUID
	AmountCents int
	Currency    enums.Currency
	Receipt     string
}

// Intent is the gateway's handle for a created payment.
type Intent struct {
	GatewayOrderID string
}

// RefundRequest reverses a captured payment, fully or partially.
type RefundRequest struct {
	GatewayPaymentID string
	AmountCents      int
}

// RefundResult is the gateway's record of an issued refund.
type RefundResult struct {
	GatewayRefundID string
}

// Gateway abstracts the payment provider. Implementations own their own HTTP
// client; callers bound every call with a context deadline.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}
