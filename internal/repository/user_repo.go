package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"gameshop/internal/model"
	"gameshop/pkg/utils"
)

// UserRepository user repository interface
type UserRepository interface {
	WithTx(tx *gorm.DB) UserRepository

	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uint64) (*model.User, error)

	// GetForUpdate reads the user under a row lock
	GetForUpdate(ctx context.Context, id uint64) (*model.User, error)

	// SetCredit writes a new THB balance only if the current balance still
	// covers minBalance. False means the guard failed.
	SetCredit(ctx context.Context, id uint64, minBalance, newBalance decimal.Decimal) (bool, error)

	// AddTopup writes the new THB balance and lifetime top-up total
	AddTopup(ctx context.Context, id uint64, newBalance, newTotalTopup decimal.Decimal) error

	// DebitPoints subtracts points when the balance covers them
	DebitPoints(ctx context.Context, id uint64, points int64) (bool, error)

	// CreditPoints adds to both the spendable and lifetime point counters
	CreditPoints(ctx context.Context, id uint64, points int64) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) WithTx(tx *gorm.DB) UserRepository {
	return &userRepository{db: tx}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetForUpdate(ctx context.Context, id uint64) (*model.User, error) {
	var user model.User
	if err := lockedFirst(r.db.WithContext(ctx), &user, "id = ?", id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) SetCredit(ctx context.Context, id uint64, minBalance, newBalance decimal.Decimal) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND credit_balance >= ?", id, minBalance).
		Update("credit_balance", newBalance)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *userRepository) AddTopup(ctx context.Context, id uint64, newBalance, newTotalTopup decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"credit_balance": newBalance,
			"total_topup":    newTotalTopup,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) DebitPoints(ctx context.Context, id uint64, points int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND point_balance >= ?", id, points).
		Update("point_balance", gorm.Expr("point_balance - ?", points))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *userRepository) CreditPoints(ctx context.Context, id uint64, points int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"point_balance":   gorm.Expr("point_balance + ?", points),
			"lifetime_points": gorm.Expr("lifetime_points + ?", points),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrUserNotFound
	}
	return nil
}
