package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"gameshop/internal/database"
	"gameshop/internal/model"
	"gameshop/pkg/utils"
)

// ProductRepository product repository interface
type ProductRepository interface {
	// WithTx binds the repository to a running transaction
	WithTx(tx *gorm.DB) ProductRepository

	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id uint64) (*model.Product, error)
	GetForUpdate(ctx context.Context, id uint64) (*model.Product, error)

	// GetByIDs returns the distinct products found, keyed by id
	GetByIDs(ctx context.Context, ids []uint64) (map[uint64]*model.Product, error)

	// MarkSold flips is_sold from false to true. False means someone else
	// already sold the product.
	MarkSold(ctx context.Context, id uint64) (bool, error)
}

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a product repository
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) WithTx(tx *gorm.DB) ProductRepository {
	return &productRepository{db: tx}
}

func (r *productRepository) Create(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *productRepository) GetByID(ctx context.Context, id uint64) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) GetForUpdate(ctx context.Context, id uint64) (*model.Product, error) {
	var product model.Product
	if err := lockedFirst(r.db.WithContext(ctx), &product, "id = ?", id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) GetByIDs(ctx context.Context, ids []uint64) (map[uint64]*model.Product, error) {
	var products []*model.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}

	byID := make(map[uint64]*model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID, nil
}

func (r *productRepository) MarkSold(ctx context.Context, id uint64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND kind = ? AND is_sold = ?", id, model.ProductKindSingle, false).
		Update("is_sold", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// lockedFirst is First with a row lock where the dialect supports one
func lockedFirst(db *gorm.DB, dest interface{}, query string, args ...interface{}) error {
	return database.ForUpdate(db).Where(query, args...).First(dest).Error
}
