package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/acavero/shopline-backend/api/middleware"
	"github.com/acavero/shopline-backend/pkg/db/models"
	pkgerrors "github.com/acavero/shopline-backend/pkg/errors"
	"github.com/acavero/shopline-backend/pkg/types"
)

type orderResponse struct {
	OrderID       uuid.UUID `json:"order_id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`

	SubtotalCents int           `json:"subtotal_cents"`
	TaxCents      int           `json:"tax_cents"`
	TotalCents    int           `json:"total_cents"`
	Currency      string        `json:"currency"`
	Address       types.Address `json:"address"`

	GatewayOrderID   *string `json:"gateway_order_id,omitempty"`
	GatewayPaymentID *string `json:"gateway_payment_id,omitempty"`

	ShippingProvider *string `json:"shipping_provider,omitempty"`
	TrackingID       *string `json:"tracking_id,omitempty"`
	TrackingURL      *string `json:"tracking_url,omitempty"`
	LabelURL         *string `json:"label_url,omitempty"`
	PickupRequestID  *string `json:"pickup_request_id,omitempty"`
	ShippingStatus   string  `json:"shipping_status"`
	ShippingError    *string `json:"shipping_error,omitempty"`

	RefundID    *string    `json:"refund_id,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`

	Items []orderItemResponse `json:"items"`
}

type orderItemResponse struct {
	ProductID      uuid.UUID `json:"product_id"`
	Name           string    `json:"name"`
	SKU            string    `json:"sku"`
	Kind           string    `json:"kind"`
	Qty            int       `json:"qty"`
	UnitPriceCents int       `json:"unit_price_cents"`
	TotalCents     int       `json:"total_cents"`
}

func newOrderResponse(order *models.Order) orderResponse {
	if order == nil {
		return orderResponse{}
	}
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID:      item.ProductID,
			Name:           item.Name,
			SKU:            item.SKU,
			Kind:           string(item.Kind),
			Qty:            item.Qty,
			UnitPriceCents: item.UnitPriceCents,
			TotalCents:     item.TotalCents,
		})
	}
	return orderResponse{
		OrderID:          order.ID,
		Status:           string(order.Status),
		PaymentStatus:    string(order.PaymentStatus),
		SubtotalCents:    order.SubtotalCents,
		TaxCents:         order.TaxCents,
		TotalCents:       order.TotalCents,
		Currency:         string(order.Currency),
		Address:          order.Address,
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: order.GatewayPaymentID,
		ShippingProvider: order.ShippingProvider,
		TrackingID:       order.TrackingID,
		TrackingURL:      order.TrackingURL,
		LabelURL:         order.LabelURL,
		PickupRequestID:  order.PickupRequestID,
		ShippingStatus:   string(order.ShippingStatus),
		ShippingError:    order.ShippingError,
		RefundID:         order.RefundID,
		PaidAt:           order.PaidAt,
		RefundedAt:       order.RefundedAt,
		CancelledAt:      order.CancelledAt,
		CreatedAt:        order.CreatedAt,
		Items:            items,
	}
}

func userIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user context")
	}
	return userID, nil
}

func orderIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "orderId")
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}
