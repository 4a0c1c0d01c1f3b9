package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TopupRequest is a bank-transfer slip awaiting admin review
type TopupRequest struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         uint64          `gorm:"not null;index" json:"userId"`
	Amount         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Status         string          `gorm:"type:varchar(16);not null;default:PENDING;index" json:"status"`
	ProofImage     string          `gorm:"type:varchar(255);not null" json:"proofImage"`
	SenderBank     string          `gorm:"type:varchar(50);not null" json:"senderBank"`
	TransactionRef string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transactionRef"`
	RejectReason   *string         `gorm:"type:varchar(255)" json:"rejectReason,omitempty"`
	ProcessedBy    *uint64         `json:"processedBy,omitempty"`
	ProcessedAt    *time.Time      `json:"processedAt,omitempty"`
	CreatedAt      time.Time       `gorm:"index" json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// TableName set name
func (TopupRequest) TableName() string {
	return "topup_requests"
}

const (
	TopupStatusPending  = "PENDING"
	TopupStatusApproved = "APPROVED"
	TopupStatusRejected = "REJECTED"
)

// IsPending check the only non-terminal state
func (t *TopupRequest) IsPending() bool {
	return t.Status == TopupStatusPending
}
