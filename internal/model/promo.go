package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PromoCode model
type PromoCode struct {
	ID            uint64              `gorm:"primaryKey;autoIncrement" json:"id"`
	Code          string              `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	DiscountType  string              `gorm:"type:varchar(16);not null" json:"discountType"`
	DiscountValue decimal.Decimal     `gorm:"type:decimal(12,2);not null" json:"discountValue"`
	MinPurchase   decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"minPurchase"`
	MaxDiscount   decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"maxDiscount"`
	UsageLimit    *int64              `json:"usageLimit,omitempty"`
	UsedCount     int64               `gorm:"not null;default:0" json:"usedCount"`
	StartsAt      time.Time           `gorm:"not null" json:"startsAt"`
	ExpiresAt     *time.Time          `json:"expiresAt,omitempty"`
	IsActive      bool                `gorm:"not null;default:true" json:"isActive"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// TableName set name
func (PromoCode) TableName() string {
	return "promo_codes"
}

const (
	DiscountTypePercentage = "PERCENTAGE"
	DiscountTypeFixed      = "FIXED"
)

// HasStarted check the start bound
func (p *PromoCode) HasStarted(now time.Time) bool {
	return !now.Before(p.StartsAt)
}

// IsExpired check the exclusive end bound
func (p *PromoCode) IsExpired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// HasUsesLeft check the usage limit
func (p *PromoCode) HasUsesLeft() bool {
	return p.UsageLimit == nil || p.UsedCount < *p.UsageLimit
}

// PromoRedemption records a committed use of a promo code
type PromoRedemption struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	PromoCodeID    uint64          `gorm:"not null;index" json:"promoCodeId"`
	UserID         uint64          `gorm:"not null;index" json:"userId"`
	PurchaseID     uint64          `gorm:"not null;uniqueIndex" json:"purchaseId"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"discountAmount"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// TableName set name
func (PromoRedemption) TableName() string {
	return "promo_redemptions"
}
