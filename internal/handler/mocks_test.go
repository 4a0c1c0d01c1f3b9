package handler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"

	"gameshop/internal/model"
	"gameshop/internal/service/ledger"
	"gameshop/internal/service/promo"
	"gameshop/internal/service/purchase"
	"gameshop/internal/service/stock"
	"gameshop/internal/service/topup"
)

type MockPurchaseService struct {
	mock.Mock
}

func (m *MockPurchaseService) Purchase(ctx context.Context, req purchase.Request) (*purchase.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*purchase.Result), args.Error(1)
}

func (m *MockPurchaseService) PurchaseOne(ctx context.Context, userID uint64, requestID string, productID uint64, promoCode string) (string, error) {
	args := m.Called(ctx, userID, requestID, productID, promoCode)
	return args.String(0), args.Error(1)
}

func (m *MockPurchaseService) History(ctx context.Context, userID uint64, page, pageSize int) ([]*purchase.Result, int64, error) {
	args := m.Called(ctx, userID, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*purchase.Result), args.Get(1).(int64), args.Error(2)
}

type MockStockService struct {
	mock.Mock
}

func (m *MockStockService) Allocate(ctx context.Context, tx *gorm.DB, product *model.Product, purchaseID uint64) (*stock.Allocation, error) {
	args := m.Called(ctx, tx, product, purchaseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stock.Allocation), args.Error(1)
}

func (m *MockStockService) Ingest(ctx context.Context, productID uint64, blob, separator string) (*stock.IngestResult, error) {
	args := m.Called(ctx, productID, blob, separator)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stock.IngestResult), args.Error(1)
}

func (m *MockStockService) Available(ctx context.Context, productID uint64) (int64, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStockService) Invalidate(productIDs ...uint64) {
	m.Called(productIDs)
}

func (m *MockStockService) Open(sealed string) (string, error) {
	args := m.Called(sealed)
	return args.String(0), args.Error(1)
}

type MockPromoService struct {
	mock.Mock
}

func (m *MockPromoService) Validate(ctx context.Context, tx *gorm.DB, code string, subtotal decimal.Decimal, now time.Time) (*promo.Quote, error) {
	args := m.Called(ctx, tx, code, subtotal, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*promo.Quote), args.Error(1)
}

func (m *MockPromoService) Redeem(ctx context.Context, tx *gorm.DB, promoID uint64) (int64, error) {
	args := m.Called(ctx, tx, promoID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPromoService) RecordRedemption(ctx context.Context, tx *gorm.DB, quote *promo.Quote, userID, purchaseID uint64) error {
	return m.Called(ctx, tx, quote, userID, purchaseID).Error(0)
}

func (m *MockPromoService) Quote(ctx context.Context, code string, subtotal decimal.Decimal) (*promo.Quote, error) {
	args := m.Called(ctx, code, subtotal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*promo.Quote), args.Error(1)
}

type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) Debit(ctx context.Context, tx *gorm.DB, userID uint64, currency string, amount decimal.Decimal, ref ledger.Ref) (*ledger.Movement, error) {
	args := m.Called(ctx, tx, userID, currency, amount, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Movement), args.Error(1)
}

func (m *MockLedgerService) Credit(ctx context.Context, tx *gorm.DB, userID uint64, currency string, amount decimal.Decimal, reason string, ref ledger.Ref) (*ledger.Movement, error) {
	args := m.Called(ctx, tx, userID, currency, amount, reason, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Movement), args.Error(1)
}

func (m *MockLedgerService) Balance(ctx context.Context, userID uint64) (*ledger.BalanceView, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.BalanceView), args.Error(1)
}

type MockTopupService struct {
	mock.Mock
}

func (m *MockTopupService) Submit(ctx context.Context, req topup.SubmitRequest) (*model.TopupRequest, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TopupRequest), args.Error(1)
}

func (m *MockTopupService) Approve(ctx context.Context, topupID, adminID uint64) (*model.TopupRequest, error) {
	args := m.Called(ctx, topupID, adminID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TopupRequest), args.Error(1)
}

func (m *MockTopupService) Reject(ctx context.Context, topupID, adminID uint64, reason string) (*model.TopupRequest, error) {
	args := m.Called(ctx, topupID, adminID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TopupRequest), args.Error(1)
}

func (m *MockTopupService) Act(ctx context.Context, adminID uint64, req topup.ActionRequest) (*model.TopupRequest, error) {
	args := m.Called(ctx, adminID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TopupRequest), args.Error(1)
}

func (m *MockTopupService) List(ctx context.Context, status string, page, pageSize int) ([]*model.TopupRequest, int64, error) {
	args := m.Called(ctx, status, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.TopupRequest), args.Get(1).(int64), args.Error(2)
}
