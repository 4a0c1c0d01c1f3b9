// Package audit turns purchase and top-up side effects into audit log
// entries and ships them to one or more sinks.
package audit

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"gameshop/internal/model"
)

// Resources named in audit entries
const (
	ResourceStockRecord = "stock_record"
	ResourceProduct     = "product"
	ResourceUser        = "user"
	ResourcePromoCode   = "promo_code"
	ResourceTopup       = "topup_request"
	ResourcePurchase    = "purchase"
)

// Actions named in audit entries
const (
	ActionPurchase     = "purchase"
	ActionDebit        = "debit"
	ActionCredit       = "credit"
	ActionRedeem       = "redeem"
	ActionTopupApprove = "topup_approve"
	ActionTopupReject  = "topup_reject"
)

// Event is one audited state change. The set of events is closed.
type Event interface {
	auditEvent()
}

// StockConsumed is a MULTI product record handed to a buyer
type StockConsumed struct {
	UserID        uint64
	PurchaseID    uint64
	ProductID     uint64
	ProductName   string
	StockRecordID uint64
}

// ProductSold is a SINGLE product flipped to sold
type ProductSold struct {
	UserID      uint64
	PurchaseID  uint64
	ProductID   uint64
	ProductName string
}

// BalanceDebited is money or points leaving a user
type BalanceDebited struct {
	UserID     uint64
	PurchaseID uint64
	Currency   string
	Amount     decimal.Decimal
	Before     decimal.Decimal
	After      decimal.Decimal
}

// BalanceCredited is money or points reaching a user
type BalanceCredited struct {
	UserID   uint64
	Currency string
	Reason   string
	RefType  string
	RefID    uint64
	Amount   decimal.Decimal
	Before   decimal.Decimal
	After    decimal.Decimal
}

// PromoRedeemed is one use of a promo code
type PromoRedeemed struct {
	UserID      uint64
	PurchaseID  uint64
	PromoCodeID uint64
	Code        string
	Discount    decimal.Decimal
	UsedCount   int64
}

// TopupApproved is an admin accepting a transfer slip
type TopupApproved struct {
	AdminID uint64
	TopupID uint64
	UserID  uint64
	Amount  decimal.Decimal
}

// TopupRejected is an admin refusing a transfer slip
type TopupRejected struct {
	AdminID uint64
	TopupID uint64
	UserID  uint64
	Reason  string
}

// PurchaseFailed is a checkout that committed nothing
type PurchaseFailed struct {
	UserID     uint64
	RequestID  string
	ProductIDs []uint64
	Reason     string
}

func (StockConsumed) auditEvent()   {}
func (ProductSold) auditEvent()     {}
func (BalanceDebited) auditEvent()  {}
func (BalanceCredited) auditEvent() {}
func (PromoRedeemed) auditEvent()   {}
func (TopupApproved) auditEvent()   {}
func (TopupRejected) auditEvent()   {}
func (PurchaseFailed) auditEvent()  {}

func idString(id uint64) *string {
	s := strconv.FormatUint(id, 10)
	return &s
}

func uid(id uint64) *uint64 {
	return &id
}

func balanceField(currency string) string {
	if currency == model.CurrencyPoint {
		return "point_balance"
	}
	return "credit_balance"
}

// Encode maps an event onto its audit log row
func Encode(e Event) *model.AuditLog {
	switch ev := e.(type) {
	case StockConsumed:
		return &model.AuditLog{
			UserID:     uid(ev.UserID),
			Action:     ActionPurchase,
			Resource:   ResourceStockRecord,
			ResourceID: idString(ev.StockRecordID),
			Status:     model.AuditStatusSuccess,
			Details: model.AuditDetails{
				ResourceName: ev.ProductName,
				Changes: []model.AuditChange{
					{Field: "status", Old: model.StockStatusAvailable, New: model.StockStatusAllocated},
					{Field: "purchase_id", Old: nil, New: ev.PurchaseID},
				},
			},
		}
	case ProductSold:
		return &model.AuditLog{
			UserID:     uid(ev.UserID),
			Action:     ActionPurchase,
			Resource:   ResourceProduct,
			ResourceID: idString(ev.ProductID),
			Status:     model.AuditStatusSuccess,
			Details: model.AuditDetails{
				ResourceName: ev.ProductName,
				Changes:      []model.AuditChange{{Field: "is_sold", Old: false, New: true}},
				Message:      fmt.Sprintf("purchase %d", ev.PurchaseID),
			},
		}
	case BalanceDebited:
		return &model.AuditLog{
			UserID:     uid(ev.UserID),
			Action:     ActionDebit,
			Resource:   ResourceUser,
			ResourceID: idString(ev.UserID),
			Status:     model.AuditStatusSuccess,
			Details: model.AuditDetails{
				Changes: []model.AuditChange{
					{Field: balanceField(ev.Currency), Old: ev.Before.String(), New: ev.After.String()},
				},
				Message: fmt.Sprintf("purchase %d: -%s %s", ev.PurchaseID, ev.Amount, ev.Currency),
			},
		}
	case BalanceCredited:
		return &model.AuditLog{
			UserID:     uid(ev.UserID),
			Action:     ActionCredit,
			Resource:   ResourceUser,
			ResourceID: idString(ev.UserID),
			Status:     model.AuditStatusSuccess,
			Details: model.AuditDetails{
				Changes: []model.AuditChange{
					{Field: balanceField(ev.Currency), Old: ev.Before.String(), New: ev.After.String()},
				},
				Message: fmt.Sprintf("%s %s %d: +%s %s", ev.Reason, ev.RefType, ev.RefID, ev.Amount, ev.Currency),
			},
		}
	case PromoRedeemed:
		return &model.AuditLog{
			UserID:     uid(ev.UserID),
			Action:     ActionRedeem,
			Resource:   ResourcePromoCode,
			ResourceID: idString(ev.PromoCodeID),
			Status:     model.AuditStatusSuccess,
			Details: model.AuditDetails{
				ResourceName: ev.Code,
				Changes:      []model.AuditChange{{Field: "used_count", Old: ev.UsedCount - 1, New: ev.UsedCount}},
				Message:      fmt.Sprintf("purchase %d: discount %s", ev.PurchaseID, ev.Discount),
			},
		}
	case TopupApproved:
		return &model.AuditLog{
			UserID:     uid(ev.AdminID),
			Action:     ActionTopupApprove,
			Resource:   ResourceTopup,
			ResourceID: idString(ev.TopupID),
			Status:     model.AuditStatusSuccess,
			Details: model.AuditDetails{
				Changes: []model.AuditChange{{Field: "status", Old: model.TopupStatusPending, New: model.TopupStatusApproved}},
				Message: fmt.Sprintf("user %d credited %s THB", ev.UserID, ev.Amount),
			},
		}
	case TopupRejected:
		return &model.AuditLog{
			UserID:     uid(ev.AdminID),
			Action:     ActionTopupReject,
			Resource:   ResourceTopup,
			ResourceID: idString(ev.TopupID),
			Status:     model.AuditStatusSuccess,
			Details: model.AuditDetails{
				Changes: []model.AuditChange{{Field: "status", Old: model.TopupStatusPending, New: model.TopupStatusRejected}},
				Message: ev.Reason,
			},
		}
	case PurchaseFailed:
		var resourceID *string
		if ev.RequestID != "" {
			resourceID = &ev.RequestID
		}
		return &model.AuditLog{
			UserID:     uid(ev.UserID),
			Action:     ActionPurchase,
			Resource:   ResourcePurchase,
			ResourceID: resourceID,
			Status:     model.AuditStatusFailure,
			Details: model.AuditDetails{
				Message: fmt.Sprintf("products %v: %s", ev.ProductIDs, ev.Reason),
			},
		}
	default:
		panic(fmt.Sprintf("audit: unhandled event %T", e))
	}
}
