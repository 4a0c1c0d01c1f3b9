package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Purchase is written once at commit and never updated
type Purchase struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement:false" json:"id"`
	PurchaseNo     string          `gorm:"type:varchar(32);uniqueIndex;not null" json:"purchaseNo"`
	RequestID      string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"requestId"`
	UserID         uint64          `gorm:"not null;index" json:"userId"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"discountAmount"`
	TotalTHB       decimal.Decimal `gorm:"column:total_thb;type:decimal(12,2);not null" json:"totalPrice"`
	TotalPoints    int64           `gorm:"not null;default:0" json:"totalPoints"`
	PromoCodeID    *uint64         `gorm:"index" json:"promoCodeId,omitempty"`
	CreatedAt      time.Time       `gorm:"index" json:"createdAt"`

	Lines []PurchaseLine `gorm:"foreignKey:PurchaseID" json:"lines,omitempty"`
}

// TableName set name
func (Purchase) TableName() string {
	return "purchases"
}

// PurchaseLine is one unit bought. StockRecordID is nil for SINGLE products.
type PurchaseLine struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	PurchaseID    uint64          `gorm:"not null;index" json:"purchaseId"`
	ProductID     uint64          `gorm:"not null;index" json:"productId"`
	ProductName   string          `gorm:"type:varchar(200);not null" json:"productName"`
	StockRecordID *uint64         `gorm:"uniqueIndex" json:"stockRecordId,omitempty"`
	Currency      string          `gorm:"type:varchar(10);not null" json:"currency"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unitPrice"`
	PricePaid     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"pricePaid"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// TableName set name
func (PurchaseLine) TableName() string {
	return "purchase_lines"
}
