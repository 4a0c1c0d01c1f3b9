package promo

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"gameshop/internal/model"
	"gameshop/internal/repository"
	"gameshop/pkg/utils"
)

var hundred = decimal.NewFromInt(100)

// Quote is the discount a code grants on a subtotal
type Quote struct {
	PromoCodeID    uint64          `json:"promoCodeId"`
	Code           string          `json:"code"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	FinalAmount    decimal.Decimal `json:"finalAmount"`
}

// PromoService validates and redeems promo codes
type PromoService interface {
	// Validate checks code against subtotal at now without changing state.
	// A nil tx reads outside any transaction.
	Validate(ctx context.Context, tx *gorm.DB, code string, subtotal decimal.Decimal, now time.Time) (*Quote, error)

	// Redeem consumes one use of the code inside the purchase transaction
	Redeem(ctx context.Context, tx *gorm.DB, promoID uint64) (int64, error)

	// RecordRedemption stores who used the code on which purchase
	RecordRedemption(ctx context.Context, tx *gorm.DB, quote *Quote, userID, purchaseID uint64) error

	// Quote previews a discount; the result is advisory
	Quote(ctx context.Context, code string, subtotal decimal.Decimal) (*Quote, error)
}

type promoService struct {
	promos repository.PromoRepository
	now    func() time.Time
}

// NewPromoService creates a promo service
func NewPromoService(promos repository.PromoRepository) PromoService {
	return &promoService{
		promos: promos,
		now:    time.Now,
	}
}

// Evaluate applies promo to subtotal. Percentage discounts round half-up to
// satang and respect MaxDiscount; fixed discounts never exceed the subtotal.
func Evaluate(promo *model.PromoCode, subtotal decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if promo == nil || !promo.IsActive || !promo.HasStarted(now) {
		return decimal.Zero, utils.ErrInvalidPromoCode
	}
	if promo.IsExpired(now) {
		return decimal.Zero, utils.ErrPromoExpired
	}
	if !promo.HasUsesLeft() {
		return decimal.Zero, utils.ErrPromoLimitReached
	}
	if promo.MinPurchase.Valid && subtotal.LessThan(promo.MinPurchase.Decimal) {
		return decimal.Zero, utils.ErrPromoBelowMinPurchase
	}

	var discount decimal.Decimal
	switch promo.DiscountType {
	case model.DiscountTypePercentage:
		discount = subtotal.Mul(promo.DiscountValue).Div(hundred).Round(2)
		if promo.MaxDiscount.Valid && discount.GreaterThan(promo.MaxDiscount.Decimal) {
			discount = promo.MaxDiscount.Decimal
		}
	case model.DiscountTypeFixed:
		discount = promo.DiscountValue
	default:
		return decimal.Zero, fmt.Errorf("promo %s has discount type %q: %w", promo.Code, promo.DiscountType, utils.ErrInvalidPromoCode)
	}

	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return discount, nil
}

func (s *promoService) Validate(ctx context.Context, tx *gorm.DB, code string, subtotal decimal.Decimal, now time.Time) (*Quote, error) {
	promos := s.promos
	if tx != nil {
		promos = promos.WithTx(tx)
	}

	promo, err := promos.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	discount, err := Evaluate(promo, subtotal, now)
	if err != nil {
		return nil, err
	}

	return &Quote{
		PromoCodeID:    promo.ID,
		Code:           promo.Code,
		Subtotal:       subtotal,
		DiscountAmount: discount,
		FinalAmount:    subtotal.Sub(discount),
	}, nil
}

func (s *promoService) Redeem(ctx context.Context, tx *gorm.DB, promoID uint64) (int64, error) {
	used, ok, err := s.promos.WithTx(tx).IncrementUsage(ctx, promoID)
	if err != nil {
		return 0, fmt.Errorf("redeem promo %d: %w", promoID, err)
	}
	if !ok {
		return 0, utils.ErrPromoLimitReached
	}
	return used, nil
}

func (s *promoService) RecordRedemption(ctx context.Context, tx *gorm.DB, quote *Quote, userID, purchaseID uint64) error {
	return s.promos.WithTx(tx).CreateRedemption(ctx, &model.PromoRedemption{
		PromoCodeID:    quote.PromoCodeID,
		UserID:         userID,
		PurchaseID:     purchaseID,
		DiscountAmount: quote.DiscountAmount,
	})
}

func (s *promoService) Quote(ctx context.Context, code string, subtotal decimal.Decimal) (*Quote, error) {
	if subtotal.IsNegative() {
		return nil, utils.Validationf("subtotal must not be negative")
	}
	return s.Validate(ctx, nil, code, subtotal, s.now())
}
