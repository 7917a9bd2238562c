package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/acavero/shopline-backend/pkg/enums"
	"github.com/acavero/shopline-backend/pkg/types"
)

// Product is the catalog record the order core reads. Pricing is resolved
// upstream; unit_price_cents is the single canonical price at checkout time.
type Product struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	SKU            string             `gorm:"column:sku;not null;uniqueIndex"`
	Title          string             `gorm:"column:title;not null"`
	Kind           enums.LineItemKind `gorm:"column:kind;type:text;not null;default:'physical'"`
	UnitPriceCents int                `gorm:"column:unit_price_cents;not null"`
	Dimensions     *types.Dimensions  `gorm:"column:dimensions;type:jsonb;serializer:json"`
	Active         bool               `gorm:"column:active;not null;default:true"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
