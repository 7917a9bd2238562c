package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/acavero/shopline-backend/pkg/enums"
	"github.com/acavero/shopline-backend/pkg/types"
)

// Order is the single source of truth for the order lifecycle. Rows are never
// deleted; cancellation is a status.
type Order struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Status        enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`

	SubtotalCents int            `gorm:"column:subtotal_cents;not null"`
	TaxCents      int            `gorm:"column:tax_cents;not null;default:0"`
	TotalCents    int            `gorm:"column:total_cents;not null"`
	Currency      enums.Currency `gorm:"column:currency;type:text;not null;default:'INR'"`
	Address       types.Address  `gorm:"column:address;type:jsonb;serializer:json"`

	GatewayOrderID   *string `gorm:"column:gateway_order_id;index"`
	GatewayPaymentID *string `gorm:"column:gateway_payment_id"`

	ShippingProvider *string              `gorm:"column:shipping_provider"`
	TrackingID       *string              `gorm:"column:tracking_id"`
	TrackingURL      *string              `gorm:"column:tracking_url"`
	LabelURL         *string              `gorm:"column:label_url"`
	PickupRequestID  *string              `gorm:"column:pickup_request_id"`
	ShippingStatus   enums.ShippingStatus `gorm:"column:shipping_status;type:text;not null;default:'pending'"`
	ShippingError    *string              `gorm:"column:shipping_error"`

	RefundID    *string    `gorm:"column:refund_id"`
	PaidAt      *time.Time `gorm:"column:paid_at"`
	RefundedAt  *time.Time `gorm:"column:refunded_at"`
	CancelledAt *time.Time `gorm:"column:cancelled_at"`

	Items []OrderLineItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
