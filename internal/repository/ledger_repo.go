package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"gameshop/internal/model"
)

// LedgerRepository ledger journal repository interface
type LedgerRepository interface {
	WithTx(tx *gorm.DB) LedgerRepository

	Append(ctx context.Context, entry *model.LedgerEntry) error
	ListByUser(ctx context.Context, userID uint64, limit int) ([]*model.LedgerEntry, error)

	// Sum totals the journal for one user, currency and direction
	Sum(ctx context.Context, userID uint64, currency, direction string) (decimal.Decimal, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a ledger repository
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) WithTx(tx *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: tx}
}

func (r *ledgerRepository) Append(ctx context.Context, entry *model.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *ledgerRepository) ListByUser(ctx context.Context, userID uint64, limit int) ([]*model.LedgerEntry, error) {
	var entries []*model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *ledgerRepository) Sum(ctx context.Context, userID uint64, currency, direction string) (decimal.Decimal, error) {
	var entries []*model.LedgerEntry
	err := r.db.WithContext(ctx).
		Select("amount").
		Where("user_id = ? AND currency = ? AND direction = ?", userID, currency, direction).
		Find(&entries).Error
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total, nil
}
