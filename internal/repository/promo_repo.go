package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"gameshop/internal/model"
)

// PromoRepository promo code repository interface
type PromoRepository interface {
	WithTx(tx *gorm.DB) PromoRepository

	Create(ctx context.Context, promo *model.PromoCode) error

	// GetByCode matches case-insensitively; nil when no such code exists
	GetByCode(ctx context.Context, code string) (*model.PromoCode, error)
	GetByID(ctx context.Context, id uint64) (*model.PromoCode, error)

	// IncrementUsage bumps used_count while the code is active and under
	// its limit and returns the new count. False means the guard rejected
	// the redemption.
	IncrementUsage(ctx context.Context, id uint64) (int64, bool, error)

	CreateRedemption(ctx context.Context, redemption *model.PromoRedemption) error
	CountRedemptions(ctx context.Context, promoID uint64) (int64, error)
}

type promoRepository struct {
	db *gorm.DB
}

// NewPromoRepository creates a promo repository
func NewPromoRepository(db *gorm.DB) PromoRepository {
	return &promoRepository{db: db}
}

func (r *promoRepository) WithTx(tx *gorm.DB) PromoRepository {
	return &promoRepository{db: tx}
}

func (r *promoRepository) Create(ctx context.Context, promo *model.PromoCode) error {
	promo.Code = strings.ToUpper(strings.TrimSpace(promo.Code))
	return r.db.WithContext(ctx).Create(promo).Error
}

func (r *promoRepository) GetByCode(ctx context.Context, code string) (*model.PromoCode, error) {
	var promo model.PromoCode
	err := r.db.WithContext(ctx).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&promo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &promo, nil
}

func (r *promoRepository) GetByID(ctx context.Context, id uint64) (*model.PromoCode, error) {
	var promo model.PromoCode
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&promo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &promo, nil
}

func (r *promoRepository) IncrementUsage(ctx context.Context, id uint64) (int64, bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.PromoCode{}).
		Where("id = ? AND is_active = ? AND (usage_limit IS NULL OR used_count < usage_limit)", id, true).
		Update("used_count", gorm.Expr("used_count + 1"))
	if result.Error != nil {
		return 0, false, result.Error
	}
	if result.RowsAffected != 1 {
		return 0, false, nil
	}

	// The row stays locked by the update until the caller's transaction ends
	var used int64
	err := r.db.WithContext(ctx).
		Model(&model.PromoCode{}).
		Where("id = ?", id).
		Select("used_count").
		Scan(&used).Error
	if err != nil {
		return 0, false, err
	}
	return used, true, nil
}

func (r *promoRepository) CreateRedemption(ctx context.Context, redemption *model.PromoRedemption) error {
	return r.db.WithContext(ctx).Create(redemption).Error
}

func (r *promoRepository) CountRedemptions(ctx context.Context, promoID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.PromoRedemption{}).
		Where("promo_code_id = ?", promoID).
		Count(&count).Error
	return count, err
}
