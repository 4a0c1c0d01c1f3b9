package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"gameshop/internal/model"
)

// PurchaseRepository purchase repository interface
type PurchaseRepository interface {
	WithTx(tx *gorm.DB) PurchaseRepository

	// Create inserts the purchase together with its lines
	Create(ctx context.Context, purchase *model.Purchase) error

	// GetByRequestID returns nil when the request has not been seen
	GetByRequestID(ctx context.Context, requestID string) (*model.Purchase, error)

	ListByUser(ctx context.Context, userID uint64, page, pageSize int) ([]*model.Purchase, int64, error)
}

type purchaseRepository struct {
	db *gorm.DB
}

// NewPurchaseRepository creates a purchase repository
func NewPurchaseRepository(db *gorm.DB) PurchaseRepository {
	return &purchaseRepository{db: db}
}

func (r *purchaseRepository) WithTx(tx *gorm.DB) PurchaseRepository {
	return &purchaseRepository{db: tx}
}

func (r *purchaseRepository) Create(ctx context.Context, purchase *model.Purchase) error {
	return r.db.WithContext(ctx).Create(purchase).Error
}

func (r *purchaseRepository) GetByRequestID(ctx context.Context, requestID string) (*model.Purchase, error) {
	var purchase model.Purchase
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("request_id = ?", requestID).
		First(&purchase).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &purchase, nil
}

func (r *purchaseRepository) ListByUser(ctx context.Context, userID uint64, page, pageSize int) ([]*model.Purchase, int64, error) {
	var purchases []*model.Purchase
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Purchase{}).Where("user_id = ?", userID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Preload("Lines").
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&purchases).Error
	return purchases, total, err
}
