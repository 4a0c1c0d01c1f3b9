package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a listing sold either as one credential (SINGLE) or from a
// pool of stock records (MULTI).
type Product struct {
	ID            uint64              `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string              `gorm:"type:varchar(200);not null" json:"name"`
	ImageURL      *string             `gorm:"type:varchar(255)" json:"imageUrl,omitempty"`
	Kind          string              `gorm:"type:varchar(10);not null;default:MULTI" json:"kind"`
	Currency      string              `gorm:"type:varchar(10);not null;default:THB" json:"currency"`
	Price         decimal.Decimal     `gorm:"type:decimal(12,2);not null" json:"price"`
	DiscountPrice decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"discountPrice"`
	IsSold        bool                `gorm:"not null;default:false" json:"isSold"`
	SealedPayload string              `gorm:"type:text" json:"-"`
	Status        int8                `gorm:"not null;default:1;index" json:"status"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// TableName set name
func (Product) TableName() string {
	return "products"
}

const (
	ProductKindSingle = "SINGLE"
	ProductKindMulti  = "MULTI"
)

const (
	CurrencyTHB   = "THB"
	CurrencyPoint = "POINT"
)

const (
	ProductStatusOnSale  = 1
	ProductStatusOffSale = 2
)

// IsSingle reports whether the product carries exactly one credential
func (p *Product) IsSingle() bool {
	return p.Kind == ProductKindSingle
}

// IsOnSale check if product is listed
func (p *Product) IsOnSale() bool {
	return p.Status == ProductStatusOnSale
}

// IsPointPriced reports whether the product is paid with points
func (p *Product) IsPointPriced() bool {
	return p.Currency == CurrencyPoint
}

// EffectivePrice is the discount price when one is set below the list price
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPrice.Valid && p.DiscountPrice.Decimal.LessThan(p.Price) {
		return p.DiscountPrice.Decimal
	}
	return p.Price
}
