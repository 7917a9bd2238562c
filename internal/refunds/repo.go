package refunds

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/acavero/shopline-backend/pkg/db/models"
)

// Repository manages persistence for refund records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, refund *models.Refund) error
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Refund, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a refunds repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, refund *models.Refund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Refund, error) {
	var refund models.Refund
	if err := r.db.WithContext(ctx).First(&refund, "order_id = ?", orderID).Error; err != nil {
		return nil, err
	}
	return &refund, nil
}
