package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem tracks stock-on-hand and reservations per product.
// Invariant: 0 <= reserved_qty <= stock_on_hand; available stock is the
// difference. Only the inventory ledger writes these counters.
type InventoryItem struct {
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	StockOnHand int       `gorm:"column:stock_on_hand;not null;default:0"`
	ReservedQty int       `gorm:"column:reserved_qty;not null;default:0"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Available returns the quantity new reservations can still claim.
func (i InventoryItem) Available() int {
	return i.StockOnHand - i.ReservedQty
}
