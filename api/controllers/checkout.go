package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/acavero/shopline-backend/api/responses"
	"github.com/acavero/shopline-backend/api/validators"
	checkoutsvc "github.com/acavero/shopline-backend/internal/checkout"
	pkgerrors "github.com/acavero/shopline-backend/pkg/errors"
	"github.com/acavero/shopline-backend/pkg/logger"
	"github.com/acavero/shopline-backend/pkg/types"
)

type checkoutRequest struct {
	Lines   []checkoutLineRequest `json:"lines" validate:"required,min=1,dive"`
	Address types.Address         `json:"address" validate:"required"`
}

type checkoutLineRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Qty       int       `json:"qty" validate:"required,gt=0"`
}

type checkoutResponse struct {
	OrderID        uuid.UUID `json:"order_id"`
	GatewayOrderID string    `json:"gateway_order_id"`
	AmountCents    int       `json:"amount_cents"`
	Currency       string    `json:"currency"`
}

// Checkout submits the caller's cart and returns the gateway handle the
// client needs to collect payment.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lines := make([]checkoutsvc.Line, 0, len(payload.Lines))
		for _, line := range payload.Lines {
			lines = append(lines, checkoutsvc.Line{ProductID: line.ProductID, Qty: line.Qty})
		}

		result, err := svc.Checkout(r.Context(), checkoutsvc.Input{
			UserID:  userID,
			Lines:   lines,
			Address: payload.Address,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			OrderID:        result.OrderID,
			GatewayOrderID: result.GatewayOrderID,
			AmountCents:    result.AmountCents,
			Currency:       string(result.Currency),
		})
	}
}
