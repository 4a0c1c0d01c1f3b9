package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"gameshop/internal/database"
	"gameshop/internal/model"
)

// StockRepository stock record repository interface
type StockRepository interface {
	WithTx(tx *gorm.DB) StockRepository

	// NextAvailable returns the lowest-position AVAILABLE record, skipping
	// rows locked by other transactions. Nil means the pool looks empty.
	NextAvailable(ctx context.Context, productID uint64) (*model.StockRecord, error)

	// NextAvailableWait is NextAvailable that waits on locked rows until
	// their holders commit or roll back.
	NextAvailableWait(ctx context.Context, productID uint64) (*model.StockRecord, error)

	// Claim moves one record from AVAILABLE to ALLOCATED. False means the
	// record was taken between NextAvailable and Claim.
	Claim(ctx context.Context, id, purchaseID uint64, at time.Time) (bool, error)

	// Append inserts records; positions must already be assigned
	Append(ctx context.Context, records []*model.StockRecord) error

	MaxPosition(ctx context.Context, productID uint64) (int64, error)
	CountAvailable(ctx context.Context, productID uint64) (int64, error)
	GetByIDs(ctx context.Context, ids []uint64) (map[uint64]*model.StockRecord, error)
}

type stockRepository struct {
	db *gorm.DB
}

// NewStockRepository creates a stock repository
func NewStockRepository(db *gorm.DB) StockRepository {
	return &stockRepository{db: db}
}

func (r *stockRepository) WithTx(tx *gorm.DB) StockRepository {
	return &stockRepository{db: tx}
}

func (r *stockRepository) NextAvailable(ctx context.Context, productID uint64) (*model.StockRecord, error) {
	return r.firstAvailable(database.ForUpdateSkipLocked(r.db.WithContext(ctx)), productID)
}

func (r *stockRepository) NextAvailableWait(ctx context.Context, productID uint64) (*model.StockRecord, error) {
	return r.firstAvailable(database.ForUpdate(r.db.WithContext(ctx)), productID)
}

func (r *stockRepository) firstAvailable(query *gorm.DB, productID uint64) (*model.StockRecord, error) {
	var record model.StockRecord
	err := query.
		Where("product_id = ? AND status = ?", productID, model.StockStatusAvailable).
		Order("position ASC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *stockRepository) Claim(ctx context.Context, id, purchaseID uint64, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.StockRecord{}).
		Where("id = ? AND status = ?", id, model.StockStatusAvailable).
		Updates(map[string]interface{}{
			"status":       model.StockStatusAllocated,
			"purchase_id":  purchaseID,
			"allocated_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *stockRepository) Append(ctx context.Context, records []*model.StockRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(records, 200).Error
}

func (r *stockRepository) MaxPosition(ctx context.Context, productID uint64) (int64, error) {
	var max int64
	err := r.db.WithContext(ctx).
		Model(&model.StockRecord{}).
		Where("product_id = ?", productID).
		Select("COALESCE(MAX(position), 0)").
		Scan(&max).Error
	return max, err
}

func (r *stockRepository) CountAvailable(ctx context.Context, productID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.StockRecord{}).
		Where("product_id = ? AND status = ?", productID, model.StockStatusAvailable).
		Count(&count).Error
	return count, err
}

func (r *stockRepository) GetByIDs(ctx context.Context, ids []uint64) (map[uint64]*model.StockRecord, error) {
	byID := make(map[uint64]*model.StockRecord, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}

	var records []*model.StockRecord
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, err
	}
	for _, rec := range records {
		byID[rec.ID] = rec
	}
	return byID, nil
}
