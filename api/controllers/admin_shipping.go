package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/acavero/shopline-backend/api/responses"
	"github.com/acavero/shopline-backend/api/validators"
	"github.com/acavero/shopline-backend/internal/shipping"
	pkgerrors "github.com/acavero/shopline-backend/pkg/errors"
	"github.com/acavero/shopline-backend/pkg/logger"
)

type shipmentRequest struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
}

// AdminShipmentCreate books a carrier shipment for a paid order. Repeat
// calls for the same order return the existing booking.
func AdminShipmentCreate(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		var payload shipmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CreateShipment(r.Context(), payload.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}

// AdminShipmentTrack pulls the latest carrier status and closes the order
// when the parcel has been delivered.
func AdminShipmentTrack(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		var payload shipmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Track(r.Context(), payload.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// AdminShipmentPickup schedules a carrier pickup for a booked shipment.
func AdminShipmentPickup(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		var payload shipmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.RequestPickup(r.Context(), payload.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// AdminShipmentLabel streams the shipping label PDF for a booked shipment.
func AdminShipmentLabel(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		raw := r.URL.Query().Get("order_id")
		orderID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order_id parameter"))
			return
		}

		label, err := svc.FetchLabel(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(label)
	}
}
