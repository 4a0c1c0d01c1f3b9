package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry journals one balance movement. (RefType, RefID, Currency,
// Direction) is unique so an originating event can move money only once.
type LedgerEntry struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        uint64          `gorm:"not null;index" json:"userId"`
	Currency      string          `gorm:"type:varchar(10);not null;uniqueIndex:uk_ledger_ref,priority:3" json:"currency"`
	Direction     string          `gorm:"type:varchar(10);not null;uniqueIndex:uk_ledger_ref,priority:4" json:"direction"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	BalanceBefore decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"balanceBefore"`
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"balanceAfter"`
	Reason        string          `gorm:"type:varchar(20);not null" json:"reason"`
	RefType       string          `gorm:"type:varchar(20);not null;uniqueIndex:uk_ledger_ref,priority:1" json:"refType"`
	RefID         uint64          `gorm:"not null;uniqueIndex:uk_ledger_ref,priority:2" json:"refId"`
	CreatedAt     time.Time       `gorm:"index" json:"createdAt"`
}

// TableName set name
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

const (
	DirectionDebit  = "DEBIT"
	DirectionCredit = "CREDIT"
)

const (
	ReasonPurchase = "purchase"
	ReasonTopup    = "topup"
	ReasonReward   = "reward"
)

const (
	RefTypePurchase = "purchase"
	RefTypeTopup    = "topup"
)
