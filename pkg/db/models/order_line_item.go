package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/acavero/shopline-backend/pkg/enums"
	"github.com/acavero/shopline-backend/pkg/types"
)

// OrderLineItem snapshots a cart line at purchase time. Price, name and
// physical attributes are frozen so later catalog edits never alter history.
type OrderLineItem struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID          `gorm:"column:product_id;type:uuid;not null"`
	Name           string             `gorm:"column:name;not null"`
	SKU            string             `gorm:"column:sku;not null"`
	Kind           enums.LineItemKind `gorm:"column:kind;type:text;not null"`
	Qty            int                `gorm:"column:qty;not null"`
	UnitPriceCents int                `gorm:"column:unit_price_cents;not null"`
	TotalCents     int                `gorm:"column:total_cents;not null"`
	Dimensions     *types.Dimensions  `gorm:"column:dimensions;type:jsonb;serializer:json"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
}
