package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/acavero/shopline-backend/pkg/db/models"
	"github.com/acavero/shopline-backend/pkg/enums"
)

// Repository manages persistence for inventory counters and reservations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindItem(ctx context.Context, productID uuid.UUID) (*models.InventoryItem, error)
	ApplyReserve(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	ApplyCommit(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	ApplyRelease(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	CreateReservation(ctx context.Context, reservation *models.Reservation) error
	FindReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	ListReservationsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Reservation, error)
	TransitionReservation(ctx context.Context, id uuid.UUID, from, to enums.ReservationState) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindItem(ctx context.Context, productID uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).First(&item, "product_id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// ApplyReserve increments the reserved counter only when enough unreserved
// stock remains. The single conditional UPDATE is what prevents overselling
// under concurrent checkouts.
func (r *repository) ApplyReserve(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET reserved_qty = reserved_qty + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND stock_on_hand - reserved_qty >= ?
	`, qty, productID, qty)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ApplyCommit converts a hold into a permanent decrement.
func (r *repository) ApplyCommit(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET stock_on_hand = stock_on_hand - ?,
			reserved_qty = reserved_qty - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND reserved_qty >= ? AND stock_on_hand >= ?
	`, qty, qty, productID, qty, qty)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ApplyRelease returns held quantity to availability without touching
// stock_on_hand.
func (r *repository) ApplyRelease(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET reserved_qty = reserved_qty - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND reserved_qty >= ?
	`, qty, productID, qty)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) CreateReservation(ctx context.Context, reservation *models.Reservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *repository) FindReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	if err := r.db.WithContext(ctx).First(&reservation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) ListReservationsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Reservation, error) {
	var reservations []models.Reservation
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&reservations).Error; err != nil {
		return nil, err
	}
	return reservations, nil
}

// TransitionReservation flips the reservation state only when it still holds
// the expected prior state, so concurrent resolvers cannot double-apply.
func (r *repository) TransitionReservation(ctx context.Context, id uuid.UUID, from, to enums.ReservationState) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE reservations
		SET state = ?, resolved_at = CURRENT_TIMESTAMP
		WHERE id = ? AND state = ?
	`, to, id, from)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
