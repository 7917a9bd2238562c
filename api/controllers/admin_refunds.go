package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/acavero/shopline-backend/api/responses"
	"github.com/acavero/shopline-backend/api/validators"
	"github.com/acavero/shopline-backend/internal/refunds"
	pkgerrors "github.com/acavero/shopline-backend/pkg/errors"
	"github.com/acavero/shopline-backend/pkg/logger"
)

type refundRequest struct {
	OrderID     uuid.UUID `json:"order_id" validate:"required"`
	AmountCents int       `json:"amount_cents" validate:"omitempty,gt=0"`
}

type refundResponse struct {
	RefundID        uuid.UUID `json:"refund_id"`
	OrderID         uuid.UUID `json:"order_id"`
	AmountCents     int       `json:"amount_cents"`
	GatewayRefundID string    `json:"gateway_refund_id"`
	IssuedAt        time.Time `json:"issued_at"`
}

// AdminRefundCreate refunds a paid order through the gateway. Omitting
// amount_cents refunds the full order total. Stock is never restocked.
func AdminRefundCreate(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refunds service unavailable"))
			return
		}

		var payload refundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		refund, err := svc.IssueRefund(r.Context(), refunds.Input{
			OrderID:     payload.OrderID,
			AmountCents: payload.AmountCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, refundResponse{
			RefundID:        refund.ID,
			OrderID:         refund.OrderID,
			AmountCents:     refund.AmountCents,
			GatewayRefundID: refund.GatewayRefundID,
			IssuedAt:        refund.IssuedAt,
		})
	}
}
