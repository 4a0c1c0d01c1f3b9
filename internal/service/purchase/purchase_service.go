package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"gameshop/internal/audit"
	"gameshop/internal/database"
	"gameshop/internal/model"
	"gameshop/internal/monitor"
	"gameshop/internal/repository"
	"gameshop/internal/service/ledger"
	"gameshop/internal/service/promo"
	"gameshop/internal/service/stock"
	"gameshop/pkg/bloom"
	"gameshop/pkg/log"
	"gameshop/pkg/snowflake"
	"gameshop/pkg/utils"
)

const maxRequestIDLength = 64

// errDuplicateRequest aborts a transaction whose request id was committed
// by someone else first.
var errDuplicateRequest = errors.New("purchase request already committed")

// Request is one checkout. Every entry of ProductIDs buys one unit.
type Request struct {
	UserID     uint64
	RequestID  string
	ProductIDs []uint64
	PromoCode  string
}

// Item is one delivered unit on a receipt
type Item struct {
	ProductID   uint64          `json:"productId"`
	ProductName string          `json:"productName"`
	Currency    string          `json:"currency"`
	PricePaid   decimal.Decimal `json:"pricePaid"`
	Credential  string          `json:"credential"`
}

// Result is the receipt of a committed purchase
type Result struct {
	PurchaseID     uint64          `json:"purchaseId,string"`
	PurchaseNo     string          `json:"purchaseNo"`
	RequestID      string          `json:"requestId"`
	PurchasedCount int             `json:"purchasedCount"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	TotalPrice     decimal.Decimal `json:"totalPrice"`
	TotalPoints    int64           `json:"totalPoints"`
	RewardPoints   int64           `json:"rewardPoints"`
	Replayed       bool            `json:"replayed"`
	CreatedAt      time.Time       `json:"createdAt"`
	Items          []Item          `json:"items"`
}

// PurchaseService runs checkouts
type PurchaseService interface {
	// Purchase buys the whole cart or nothing
	Purchase(ctx context.Context, req Request) (*Result, error)

	// PurchaseOne buys a single product and returns its name
	PurchaseOne(ctx context.Context, userID uint64, requestID string, productID uint64, promoCode string) (string, error)

	// History lists a buyer's purchases, newest first, with credentials
	History(ctx context.Context, userID uint64, page, pageSize int) ([]*Result, int64, error)
}

// Options configures NewPurchaseService
type Options struct {
	MaxCartItems int
	PointsPerTHB int64
	TxOptions    database.TxOptions
}

// Deps are the collaborators of the purchase service
type Deps struct {
	DB        *gorm.DB
	Users     repository.UserRepository
	Products  repository.ProductRepository
	Stock     repository.StockRepository
	Purchases repository.PurchaseRepository
	Pool      stock.StockService
	Ledger    ledger.LedgerService
	Promos    promo.PromoService
	Recorder  audit.Recorder
	IDs       *snowflake.IDGenerator
	Seen      *bloom.Filter
	Metrics   *monitor.Metrics
}

type purchaseService struct {
	Deps
	opts Options
	now  func() time.Time
}

// NewPurchaseService creates a purchase service
func NewPurchaseService(deps Deps, opts Options) PurchaseService {
	if opts.MaxCartItems <= 0 {
		opts.MaxCartItems = 50
	}
	if opts.TxOptions.MaxRetries == 0 {
		opts.TxOptions = database.DefaultTxOptions()
	}
	if deps.Recorder == nil {
		deps.Recorder = audit.Nop{}
	}
	if deps.Seen == nil {
		deps.Seen = bloom.New(100000, 0.001)
	}

	s := &purchaseService{Deps: deps, opts: opts, now: time.Now}
	s.opts.TxOptions.OnRetry = func(int, error) {
		s.Metrics.IncTxRetry("purchase")
	}
	return s
}

func (s *purchaseService) validate(req *Request) error {
	if req.UserID == 0 {
		return utils.Validationf("user id is required")
	}
	if len(req.ProductIDs) == 0 {
		return utils.Validationf("cart is empty")
	}
	if len(req.ProductIDs) > s.opts.MaxCartItems {
		return utils.Validationf("cart has %d items, at most %d allowed", len(req.ProductIDs), s.opts.MaxCartItems)
	}
	for _, id := range req.ProductIDs {
		if id == 0 {
			return utils.Validationf("product id must be positive")
		}
	}
	if len(req.RequestID) > maxRequestIDLength {
		return utils.Validationf("request id exceeds %d characters", maxRequestIDLength)
	}
	return nil
}

// committed is what a successful transaction hands back
type committed struct {
	record   *model.Purchase
	sealed   []string
	kinds    map[string]int
	reward   int64
	promo    *promo.Quote
	events   []audit.Event
	products []uint64
}

func (s *purchaseService) Purchase(ctx context.Context, req Request) (result *Result, err error) {
	ctx, span := monitor.StartSpan(ctx, "purchase.Purchase",
		attribute.Int64("user.id", int64(req.UserID)),
		attribute.Int("cart.size", len(req.ProductIDs)),
	)
	start := s.now()
	defer func() {
		monitor.EndSpan(span, err)
		if err != nil {
			s.fail(ctx, req, err, s.now().Sub(start))
		}
	}()

	if err = s.validate(&req); err != nil {
		return nil, err
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	if s.Seen.MayContain(req.RequestID) {
		if result, err = s.replay(ctx, req); result != nil || err != nil {
			return result, err
		}
	}

	id := s.IDs.NextID()
	var c *committed
	err = database.Transaction(ctx, s.DB, s.opts.TxOptions, func(tx *gorm.DB) error {
		var txErr error
		c, txErr = s.checkout(ctx, tx, req, id)
		return txErr
	})
	if errors.Is(err, errDuplicateRequest) {
		if result, err = s.replay(ctx, req); result != nil || err != nil {
			return result, err
		}
		return nil, fmt.Errorf("request %s: %w", req.RequestID, utils.ErrConcurrencyConflict)
	}
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, req, c, s.now().Sub(start))
	return s.receipt(c), nil
}

func (s *purchaseService) checkout(ctx context.Context, tx *gorm.DB, req Request, id snowflake.ID) (*committed, error) {
	if _, err := s.Users.WithTx(tx).GetByID(ctx, req.UserID); err != nil {
		return nil, err
	}

	products, err := s.Products.WithTx(tx).GetByIDs(ctx, req.ProductIDs)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	c := &committed{kinds: make(map[string]int)}
	var (
		allocations []*stock.Allocation
		unavailable []uint64
		reported    = make(map[uint64]bool)
	)
	markUnavailable := func(productID uint64) {
		if !reported[productID] {
			reported[productID] = true
			unavailable = append(unavailable, productID)
		}
	}

	for _, productID := range req.ProductIDs {
		product, ok := products[productID]
		if !ok || !product.IsOnSale() {
			markUnavailable(productID)
			continue
		}
		alloc, err := s.Pool.Allocate(ctx, tx, product, id.Value)
		if errors.Is(err, utils.ErrOutOfStock) {
			markUnavailable(productID)
			continue
		}
		if err != nil {
			return nil, err
		}
		allocations = append(allocations, alloc)
	}
	if len(unavailable) > 0 {
		return nil, &utils.OutOfStockError{ProductIDs: unavailable}
	}

	subtotal := decimal.Zero
	points := decimal.Zero
	lines := make([]model.PurchaseLine, len(allocations))
	for i, alloc := range allocations {
		product := products[alloc.ProductID]
		price := product.EffectivePrice()
		if product.IsPointPriced() {
			points = points.Add(price)
		} else {
			subtotal = subtotal.Add(price)
		}

		lines[i] = model.PurchaseLine{
			PurchaseID:    id.Value,
			ProductID:     product.ID,
			ProductName:   product.Name,
			StockRecordID: alloc.StockRecordID,
			Currency:      product.Currency,
			UnitPrice:     product.Price,
			PricePaid:     price,
		}
		c.sealed = append(c.sealed, alloc.SealedPayload)
		c.kinds[product.Kind]++

		if alloc.StockRecordID != nil {
			c.events = append(c.events, audit.StockConsumed{
				UserID:        req.UserID,
				PurchaseID:    id.Value,
				ProductID:     product.ID,
				ProductName:   product.Name,
				StockRecordID: *alloc.StockRecordID,
			})
		} else {
			c.events = append(c.events, audit.ProductSold{
				UserID:      req.UserID,
				PurchaseID:  id.Value,
				ProductID:   product.ID,
				ProductName: product.Name,
			})
		}
		c.products = append(c.products, product.ID)
	}

	discount := decimal.Zero
	if req.PromoCode != "" {
		if !subtotal.IsPositive() {
			return nil, fmt.Errorf("promo on a cart without THB items: %w", utils.ErrInvalidPromoCode)
		}
		quote, err := s.Promos.Validate(ctx, tx, req.PromoCode, subtotal, s.now())
		if err != nil {
			return nil, err
		}
		used, err := s.Promos.Redeem(ctx, tx, quote.PromoCodeID)
		if err != nil {
			return nil, err
		}
		discount = quote.DiscountAmount
		c.promo = quote
		c.events = append(c.events, audit.PromoRedeemed{
			UserID:      req.UserID,
			PurchaseID:  id.Value,
			PromoCodeID: quote.PromoCodeID,
			Code:        quote.Code,
			Discount:    discount,
			UsedCount:   used,
		})
	}
	total := subtotal.Sub(discount)

	ref := ledger.Ref{Type: model.RefTypePurchase, ID: id.Value}
	for _, charge := range []struct {
		currency string
		amount   decimal.Decimal
	}{
		{model.CurrencyTHB, total},
		{model.CurrencyPoint, points},
	} {
		if !charge.amount.IsPositive() {
			continue
		}
		mv, err := s.Ledger.Debit(ctx, tx, req.UserID, charge.currency, charge.amount, ref)
		if err != nil {
			return nil, err
		}
		c.events = append(c.events, audit.BalanceDebited{
			UserID:     req.UserID,
			PurchaseID: id.Value,
			Currency:   mv.Currency,
			Amount:     mv.Amount,
			Before:     mv.BalanceBefore,
			After:      mv.BalanceAfter,
		})
	}

	if s.opts.PointsPerTHB > 0 && total.IsPositive() {
		reward := total.Floor().IntPart() * s.opts.PointsPerTHB
		if reward > 0 {
			mv, err := s.Ledger.Credit(ctx, tx, req.UserID, model.CurrencyPoint, decimal.NewFromInt(reward), model.ReasonReward, ref)
			if err != nil {
				return nil, err
			}
			c.reward = reward
			c.events = append(c.events, audit.BalanceCredited{
				UserID:   req.UserID,
				Currency: model.CurrencyPoint,
				Reason:   model.ReasonReward,
				RefType:  ref.Type,
				RefID:    ref.ID,
				Amount:   mv.Amount,
				Before:   mv.BalanceBefore,
				After:    mv.BalanceAfter,
			})
		}
	}

	record := &model.Purchase{
		ID:             id.Value,
		PurchaseNo:     id.No,
		RequestID:      req.RequestID,
		UserID:         req.UserID,
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TotalTHB:       total,
		TotalPoints:    points.IntPart(),
		Lines:          lines,
	}
	if c.promo != nil {
		record.PromoCodeID = &c.promo.PromoCodeID
	}
	if err := s.Purchases.WithTx(tx).Create(ctx, record); err != nil {
		if database.IsDuplicateKey(err) {
			return nil, errDuplicateRequest
		}
		return nil, fmt.Errorf("save purchase: %w", err)
	}

	if c.promo != nil {
		if err := s.Promos.RecordRedemption(ctx, tx, c.promo, req.UserID, id.Value); err != nil {
			return nil, fmt.Errorf("save promo redemption: %w", err)
		}
	}

	c.record = record
	return c, nil
}

func (s *purchaseService) afterCommit(ctx context.Context, req Request, c *committed, elapsed time.Duration) {
	s.Seen.Add(req.RequestID)
	s.Pool.Invalidate(c.products...)

	s.Metrics.ObservePurchase("success", elapsed)
	for kind, n := range c.kinds {
		s.Metrics.AddPurchasedUnits(kind, n)
	}
	if c.promo != nil {
		s.Metrics.IncPromoRedemption()
	}

	// The purchase is durable; a slow or cancelled client must not lose
	// its audit trail.
	auditCtx := context.WithoutCancel(ctx)
	if err := s.Recorder.Record(auditCtx, c.events...); err != nil {
		log.WithContext(ctx).WithError(err).WithField("purchase_no", c.record.PurchaseNo).
			Warn("Failed to record purchase audit events")
	}

	log.WithContext(ctx).WithFields(map[string]interface{}{
		"user_id":     req.UserID,
		"purchase_no": c.record.PurchaseNo,
		"items":       len(c.record.Lines),
		"total_thb":   c.record.TotalTHB.String(),
		"total_pts":   c.record.TotalPoints,
	}).Info("Purchase committed")
}

func outcome(err error) string {
	switch {
	case errors.Is(err, utils.ErrValidation):
		return "invalid"
	case errors.Is(err, utils.ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, utils.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, utils.ErrInvalidPromoCode),
		errors.Is(err, utils.ErrPromoExpired),
		errors.Is(err, utils.ErrPromoLimitReached),
		errors.Is(err, utils.ErrPromoBelowMinPurchase):
		return "promo_rejected"
	case errors.Is(err, utils.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

func (s *purchaseService) fail(ctx context.Context, req Request, err error, elapsed time.Duration) {
	kind := outcome(err)
	s.Metrics.ObservePurchase(kind, elapsed)

	entry := log.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
		"user_id":    req.UserID,
		"request_id": req.RequestID,
		"outcome":    kind,
	})
	if kind == "error" {
		entry.Error("Purchase failed")
	} else {
		entry.Info("Purchase rejected")
	}

	auditCtx := context.WithoutCancel(ctx)
	failed := audit.PurchaseFailed{
		UserID:     req.UserID,
		RequestID:  req.RequestID,
		ProductIDs: req.ProductIDs,
		Reason:     utils.GetErrorMessage(err),
	}
	if recErr := s.Recorder.Record(auditCtx, failed); recErr != nil {
		log.WithContext(ctx).WithError(recErr).Warn("Failed to record purchase failure")
	}
}

func (s *purchaseService) replay(ctx context.Context, req Request) (*Result, error) {
	existing, err := s.Purchases.GetByRequestID(ctx, req.RequestID)
	if err != nil || existing == nil {
		return nil, err
	}
	if existing.UserID != req.UserID {
		return nil, utils.Validationf("request id %s was used by another account", req.RequestID)
	}

	results, err := s.receipts(ctx, []*model.Purchase{existing})
	if err != nil {
		return nil, err
	}
	results[0].Replayed = true
	return results[0], nil
}

func (s *purchaseService) open(sealed string) string {
	if sealed == "" {
		return ""
	}
	plain, err := s.Pool.Open(sealed)
	if err != nil {
		log.WithError(err).Error("Failed to open sealed credential")
		return ""
	}
	return plain
}

func (s *purchaseService) receipt(c *committed) *Result {
	res := newResult(c.record)
	res.RewardPoints = c.reward
	for i := range res.Items {
		res.Items[i].Credential = s.open(c.sealed[i])
	}
	return res
}

func newResult(p *model.Purchase) *Result {
	res := &Result{
		PurchaseID:     p.ID,
		PurchaseNo:     p.PurchaseNo,
		RequestID:      p.RequestID,
		PurchasedCount: len(p.Lines),
		Subtotal:       p.Subtotal,
		DiscountAmount: p.DiscountAmount,
		TotalPrice:     p.TotalTHB,
		TotalPoints:    p.TotalPoints,
		CreatedAt:      p.CreatedAt,
		Items:          make([]Item, len(p.Lines)),
	}
	for i, line := range p.Lines {
		res.Items[i] = Item{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Currency:    line.Currency,
			PricePaid:   line.PricePaid,
		}
	}
	return res
}

// receipts rebuilds results for stored purchases, unsealing credentials
// from their stock records or SINGLE products.
func (s *purchaseService) receipts(ctx context.Context, purchases []*model.Purchase) ([]*Result, error) {
	var recordIDs, productIDs []uint64
	for _, p := range purchases {
		for _, line := range p.Lines {
			if line.StockRecordID != nil {
				recordIDs = append(recordIDs, *line.StockRecordID)
			} else {
				productIDs = append(productIDs, line.ProductID)
			}
		}
	}

	records, err := s.Stock.GetByIDs(ctx, recordIDs)
	if err != nil {
		return nil, fmt.Errorf("load stock records: %w", err)
	}
	products, err := s.Products.GetByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	results := make([]*Result, len(purchases))
	for i, p := range purchases {
		res := newResult(p)
		for j, line := range p.Lines {
			if line.StockRecordID != nil {
				if rec, ok := records[*line.StockRecordID]; ok {
					res.Items[j].Credential = s.open(rec.SealedPayload)
				}
			} else if product, ok := products[line.ProductID]; ok {
				res.Items[j].Credential = s.open(product.SealedPayload)
			}
		}
		results[i] = res
	}
	return results, nil
}

func (s *purchaseService) PurchaseOne(ctx context.Context, userID uint64, requestID string, productID uint64, promoCode string) (string, error) {
	res, err := s.Purchase(ctx, Request{
		UserID:     userID,
		RequestID:  requestID,
		ProductIDs: []uint64{productID},
		PromoCode:  promoCode,
	})
	if err != nil {
		return "", err
	}
	return res.Items[0].ProductName, nil
}

func (s *purchaseService) History(ctx context.Context, userID uint64, page, pageSize int) ([]*Result, int64, error) {
	page, pageSize = utils.ValidatePage(page, pageSize)
	purchases, total, err := s.Purchases.ListByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	results, err := s.receipts(ctx, purchases)
	if err != nil {
		return nil, 0, err
	}
	return results, total, nil
}
