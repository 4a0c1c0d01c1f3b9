package model

import "time"

// StockRecord is one credential in a MULTI product's pool. Position fixes
// the FIFO order; it is assigned at ingestion and never reused.
type StockRecord struct {
	ID            uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID     uint64     `gorm:"not null;uniqueIndex:uk_stock_product_position,priority:1;index:idx_stock_product_status,priority:1" json:"productId"`
	Position      int64      `gorm:"not null;uniqueIndex:uk_stock_product_position,priority:2" json:"position"`
	SealedPayload string     `gorm:"type:text;not null" json:"-"`
	Status        string     `gorm:"type:varchar(16);not null;default:AVAILABLE;index:idx_stock_product_status,priority:2" json:"status"`
	PurchaseID    *uint64    `gorm:"index" json:"purchaseId,omitempty"`
	AllocatedAt   *time.Time `json:"allocatedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// TableName set name
func (StockRecord) TableName() string {
	return "stock_records"
}

const (
	StockStatusAvailable = "AVAILABLE"
	StockStatusAllocated = "ALLOCATED"
)

// IsAvailable check if the record can still be allocated
func (s *StockRecord) IsAvailable() bool {
	return s.Status == StockStatusAvailable
}
