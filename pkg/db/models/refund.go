package models

import (
	"time"

	"github.com/google/uuid"
)

// Refund records a gateway refund issued against a paid order. The unique
// index enforces the single-refund-per-order rule.
type Refund struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	GatewayRefundID string    `gorm:"column:gateway_refund_id;not null"`
	AmountCents     int       `gorm:"column:amount_cents;not null"`
	IssuedAt        time.Time `gorm:"column:issued_at;autoCreateTime"`
}
