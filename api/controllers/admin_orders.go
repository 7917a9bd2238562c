package controllers

import (
	"net/http"
	"strconv"

	"github.com/acavero/shopline-backend/api/responses"
	"github.com/acavero/shopline-backend/internal/orders"
	pkgerrors "github.com/acavero/shopline-backend/pkg/errors"
	"github.com/acavero/shopline-backend/pkg/logger"
)

const maxListLimit = 200

// AdminOrderList returns recent orders across all customers.
func AdminOrderList(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		limit, err := queryInt(r, "limit", 0)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := queryInt(r, "offset", 0)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}

		results, err := svc.List(r.Context(), limit, offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := make([]orderResponse, 0, len(results))
		for i := range results {
			payload = append(payload, newOrderResponse(&results[i]))
		}
		responses.WriteSuccess(w, payload)
	}
}

// AdminOrderDetail returns any order by id.
func AdminOrderDetail(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := orderIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid "+name+" parameter")
	}
	return value, nil
}
