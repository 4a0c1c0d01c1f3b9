package stock

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	"gorm.io/gorm"

	"gameshop/internal/database"
	"gameshop/internal/model"
	"gameshop/internal/monitor"
	"gameshop/internal/repository"
	"gameshop/pkg/log"
	"gameshop/pkg/secret"
	"gameshop/pkg/utils"
)

// DefaultSeparator splits an ingestion blob into one credential per line
const DefaultSeparator = "\n"

// Allocation is the unit handed to one purchase line
type Allocation struct {
	ProductID     uint64
	Kind          string
	StockRecordID *uint64
	SealedPayload string
}

// IngestResult summarizes one ingestion
type IngestResult struct {
	ProductID     uint64 `json:"productId"`
	Added         int    `json:"added"`
	FirstPosition int64  `json:"firstPosition"`
	LastPosition  int64  `json:"lastPosition"`
}

// StockService owns every product's pool of deliverable credentials
type StockService interface {
	// Allocate takes the next unit of product inside tx. It returns
	// ErrOutOfStock when nothing is left and ErrConcurrencyConflict when a
	// concurrent purchase won the race for the chosen record.
	Allocate(ctx context.Context, tx *gorm.DB, product *model.Product, purchaseID uint64) (*Allocation, error)

	// Ingest appends the non-blank entries of blob to a MULTI product's pool
	Ingest(ctx context.Context, productID uint64, blob, separator string) (*IngestResult, error)

	// Available is advisory and may lag behind committed purchases
	Available(ctx context.Context, productID uint64) (int64, error)

	// Invalidate drops cached availability after stock changed
	Invalidate(productIDs ...uint64)

	// Open opens a sealed payload for its buyer
	Open(sealed string) (string, error)
}

type stockService struct {
	db        *gorm.DB
	products  repository.ProductRepository
	stock     repository.StockRepository
	box       *secret.Box
	cache     *bigcache.BigCache
	metrics   *monitor.Metrics
	txOptions database.TxOptions
	separator string
	now       func() time.Time
}

// Options configures NewStockService
type Options struct {
	Cache     *bigcache.BigCache
	Metrics   *monitor.Metrics
	TxOptions database.TxOptions
	Separator string
}

// NewStockService creates a stock service. A nil cache disables caching.
func NewStockService(
	db *gorm.DB,
	products repository.ProductRepository,
	stock repository.StockRepository,
	box *secret.Box,
	opts Options,
) StockService {
	if opts.Separator == "" {
		opts.Separator = DefaultSeparator
	}
	if opts.TxOptions.MaxRetries == 0 {
		opts.TxOptions = database.DefaultTxOptions()
	}
	return &stockService{
		db:        db,
		products:  products,
		stock:     stock,
		box:       box,
		cache:     opts.Cache,
		metrics:   opts.Metrics,
		txOptions: opts.TxOptions,
		separator: opts.Separator,
		now:       time.Now,
	}
}

// NewAvailabilityCache builds the in-process availability cache
func NewAvailabilityCache(ctx context.Context, ttl time.Duration) (*bigcache.BigCache, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.Shards = 64
	cfg.MaxEntriesInWindow = 10000
	cfg.MaxEntrySize = 16
	cfg.HardMaxCacheSize = 8
	cfg.CleanWindow = ttl
	cfg.Verbose = false
	return bigcache.New(ctx, cfg)
}

func (s *stockService) Allocate(ctx context.Context, tx *gorm.DB, product *model.Product, purchaseID uint64) (*Allocation, error) {
	if product.IsSingle() {
		sold, err := s.products.WithTx(tx).MarkSold(ctx, product.ID)
		if err != nil {
			return nil, fmt.Errorf("mark product %d sold: %w", product.ID, err)
		}
		if !sold {
			return nil, utils.ErrOutOfStock
		}
		return &Allocation{
			ProductID:     product.ID,
			Kind:          product.Kind,
			SealedPayload: product.SealedPayload,
		}, nil
	}

	repo := s.stock.WithTx(tx)
	record, err := repo.NextAvailable(ctx, product.ID)
	if err != nil {
		return nil, fmt.Errorf("find stock for product %d: %w", product.ID, err)
	}
	if record == nil {
		// Every remaining record may be locked by an in-flight purchase
		// that can still roll back. Wait for those holders instead of
		// guessing.
		record, err = repo.NextAvailableWait(ctx, product.ID)
		if err != nil {
			return nil, fmt.Errorf("wait for stock of product %d: %w", product.ID, err)
		}
		if record == nil {
			return nil, utils.ErrOutOfStock
		}
	}

	claimed, err := repo.Claim(ctx, record.ID, purchaseID, s.now())
	if err != nil {
		return nil, fmt.Errorf("claim stock record %d: %w", record.ID, err)
	}
	if !claimed {
		s.metrics.IncAllocationConflict()
		return nil, utils.ErrConcurrencyConflict
	}

	id := record.ID
	return &Allocation{
		ProductID:     product.ID,
		Kind:          product.Kind,
		StockRecordID: &id,
		SealedPayload: record.SealedPayload,
	}, nil
}

// SplitEntries splits an admin blob on separator, trimming whitespace and
// dropping blank entries. CRLF line endings are normalized in both the blob
// and the separator first.
func SplitEntries(blob, separator string) []string {
	if separator == "" {
		separator = DefaultSeparator
	}
	blob = strings.ReplaceAll(blob, "\r\n", "\n")
	separator = strings.ReplaceAll(separator, "\r\n", "\n")

	var entries []string
	for _, part := range strings.Split(blob, separator) {
		if entry := strings.TrimSpace(part); entry != "" {
			entries = append(entries, entry)
		}
	}
	return entries
}

func (s *stockService) Ingest(ctx context.Context, productID uint64, blob, separator string) (*IngestResult, error) {
	if separator == "" {
		separator = s.separator
	}
	entries := SplitEntries(blob, separator)
	if len(entries) == 0 {
		return nil, utils.Validationf("stock contains no entries")
	}

	sealed := make([]string, len(entries))
	for i, entry := range entries {
		v, err := s.box.Seal(entry)
		if err != nil {
			return nil, err
		}
		sealed[i] = v
	}

	result := &IngestResult{ProductID: productID, Added: len(entries)}
	err := database.Transaction(ctx, s.db, s.txOptions, func(tx *gorm.DB) error {
		product, err := s.products.WithTx(tx).GetForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if product.IsSingle() {
			return utils.Validationf("product %d holds a single credential and has no stock pool", productID)
		}

		repo := s.stock.WithTx(tx)
		last, err := repo.MaxPosition(ctx, productID)
		if err != nil {
			return err
		}

		records := make([]*model.StockRecord, len(sealed))
		for i, payload := range sealed {
			records[i] = &model.StockRecord{
				ProductID:     productID,
				Position:      last + int64(i) + 1,
				SealedPayload: payload,
				Status:        model.StockStatusAvailable,
			}
		}
		result.FirstPosition = last + 1
		result.LastPosition = last + int64(len(records))
		return repo.Append(ctx, records)
	})
	if err != nil {
		return nil, err
	}

	s.Invalidate(productID)
	s.metrics.AddStockIngested(result.Added)

	log.WithContext(ctx).WithFields(map[string]interface{}{
		"product_id": productID,
		"added":      result.Added,
		"positions":  fmt.Sprintf("%d-%d", result.FirstPosition, result.LastPosition),
	}).Info("Stock ingested")

	return result, nil
}

func (s *stockService) Available(ctx context.Context, productID uint64) (int64, error) {
	key := strconv.FormatUint(productID, 10)
	if s.cache != nil {
		if b, err := s.cache.Get(key); err == nil && len(b) == 8 {
			return int64(binary.BigEndian.Uint64(b)), nil
		}
	}

	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return 0, err
	}

	var available int64
	if product.IsSingle() {
		if !product.IsSold {
			available = 1
		}
	} else {
		available, err = s.stock.CountAvailable(ctx, productID)
		if err != nil {
			return 0, err
		}
	}

	if s.cache != nil {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(available))
		_ = s.cache.Set(key, buf)
	}
	return available, nil
}

func (s *stockService) Invalidate(productIDs ...uint64) {
	if s.cache == nil {
		return
	}
	for _, id := range productIDs {
		_ = s.cache.Delete(strconv.FormatUint(id, 10))
	}
}

func (s *stockService) Open(sealed string) (string, error) {
	return s.box.Open(sealed)
}
