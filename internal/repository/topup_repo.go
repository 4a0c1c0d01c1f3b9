package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"gameshop/internal/model"
	"gameshop/pkg/utils"
)

// TopupRepository topup request repository interface
type TopupRepository interface {
	WithTx(tx *gorm.DB) TopupRepository

	Create(ctx context.Context, topup *model.TopupRequest) error
	GetByID(ctx context.Context, id uint64) (*model.TopupRequest, error)
	GetForUpdate(ctx context.Context, id uint64) (*model.TopupRequest, error)

	// Resolve moves a PENDING request to a terminal status. False means it
	// was no longer PENDING.
	Resolve(ctx context.Context, id uint64, status string, adminID uint64, reason *string, at time.Time) (bool, error)

	ListByStatus(ctx context.Context, status string, page, pageSize int) ([]*model.TopupRequest, int64, error)
}

type topupRepository struct {
	db *gorm.DB
}

// NewTopupRepository creates a topup repository
func NewTopupRepository(db *gorm.DB) TopupRepository {
	return &topupRepository{db: db}
}

func (r *topupRepository) WithTx(tx *gorm.DB) TopupRepository {
	return &topupRepository{db: tx}
}

func (r *topupRepository) Create(ctx context.Context, topup *model.TopupRequest) error {
	return r.db.WithContext(ctx).Create(topup).Error
}

func (r *topupRepository) GetByID(ctx context.Context, id uint64) (*model.TopupRequest, error) {
	var topup model.TopupRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&topup).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrTopupNotFound
		}
		return nil, err
	}
	return &topup, nil
}

func (r *topupRepository) GetForUpdate(ctx context.Context, id uint64) (*model.TopupRequest, error) {
	var topup model.TopupRequest
	if err := lockedFirst(r.db.WithContext(ctx), &topup, "id = ?", id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrTopupNotFound
		}
		return nil, err
	}
	return &topup, nil
}

func (r *topupRepository) Resolve(ctx context.Context, id uint64, status string, adminID uint64, reason *string, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":       status,
		"processed_by": adminID,
		"processed_at": at,
	}
	if reason != nil {
		updates["reject_reason"] = *reason
	}

	result := r.db.WithContext(ctx).
		Model(&model.TopupRequest{}).
		Where("id = ? AND status = ?", id, model.TopupStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *topupRepository) ListByStatus(ctx context.Context, status string, page, pageSize int) ([]*model.TopupRequest, int64, error) {
	var topups []*model.TopupRequest
	var total int64

	db := r.db.WithContext(ctx).Model(&model.TopupRequest{})
	if status != "" {
		db = db.Where("status = ?", status)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Order("created_at ASC, id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&topups).Error
	return topups, total, err
}
