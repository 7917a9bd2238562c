package checkout

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/acavero/shopline-backend/pkg/db/models"
)

// ProductRepository is the catalog read surface checkout needs.
type ProductRepository interface {
	WithTx(tx *gorm.DB) ProductRepository
	FindActiveByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository returns a catalog repository bound to the database.
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) WithTx(tx *gorm.DB) ProductRepository {
	if tx == nil {
		return r
	}
	return &productRepository{db: tx}
}

func (r *productRepository) FindActiveByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	var products []models.Product
	if len(ids) == 0 {
		return products, nil
	}
	if err := r.db.WithContext(ctx).
		Where("id IN ? AND active = ?", ids, true).
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}
