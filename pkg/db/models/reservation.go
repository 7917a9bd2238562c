package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/acavero/shopline-backend/pkg/enums"
)

// Reservation links an order line to the stock it provisionally holds. Each
// reservation resolves to exactly one terminal state (committed or released).
type Reservation struct {
	ID         uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID              `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID  uuid.UUID              `gorm:"column:product_id;type:uuid;not null;index"`
	Qty        int                    `gorm:"column:qty;not null"`
	State      enums.ReservationState `gorm:"column:state;type:text;not null;default:'held'"`
	CreatedAt  time.Time              `gorm:"column:created_at;autoCreateTime"`
	ResolvedAt *time.Time             `gorm:"column:resolved_at"`
}
