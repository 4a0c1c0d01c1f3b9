package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gameshop/internal/database/dbtest"
	"gameshop/internal/model"
	"gameshop/internal/monitor"
	"gameshop/internal/repository"
	"gameshop/pkg/breaker"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name       string
		event      Event
		action     string
		resource   string
		resourceID string
		status     string
	}{
		{"StockConsumed", StockConsumed{UserID: 1, PurchaseID: 9, ProductID: 3, ProductName: "ROV", StockRecordID: 77}, ActionPurchase, ResourceStockRecord, "77", model.AuditStatusSuccess},
		{"ProductSold", ProductSold{UserID: 1, PurchaseID: 9, ProductID: 3}, ActionPurchase, ResourceProduct, "3", model.AuditStatusSuccess},
		{"BalanceDebited", BalanceDebited{UserID: 1, Currency: model.CurrencyTHB, Amount: decimal.NewFromInt(90)}, ActionDebit, ResourceUser, "1", model.AuditStatusSuccess},
		{"BalanceCredited", BalanceCredited{UserID: 2, Currency: model.CurrencyPoint, Amount: decimal.NewFromInt(10)}, ActionCredit, ResourceUser, "2", model.AuditStatusSuccess},
		{"PromoRedeemed", PromoRedeemed{UserID: 1, PromoCodeID: 5, Code: "SAVE10"}, ActionRedeem, ResourcePromoCode, "5", model.AuditStatusSuccess},
		{"TopupApproved", TopupApproved{AdminID: 100, TopupID: 8, UserID: 1}, ActionTopupApprove, ResourceTopup, "8", model.AuditStatusSuccess},
		{"TopupRejected", TopupRejected{AdminID: 100, TopupID: 8, Reason: "blurry slip"}, ActionTopupReject, ResourceTopup, "8", model.AuditStatusSuccess},
		{"PurchaseFailed", PurchaseFailed{UserID: 1, RequestID: "req-1", ProductIDs: []uint64{3}, Reason: "out of stock"}, ActionPurchase, ResourcePurchase, "req-1", model.AuditStatusFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := Encode(tt.event)
			assert.Equal(t, tt.action, entry.Action)
			assert.Equal(t, tt.resource, entry.Resource)
			require.NotNil(t, entry.ResourceID)
			assert.Equal(t, tt.resourceID, *entry.ResourceID)
			assert.Equal(t, tt.status, entry.Status)
			assert.NotNil(t, entry.UserID)
		})
	}

	t.Run("DebitRecordsBalanceTransition", func(t *testing.T) {
		entry := Encode(BalanceDebited{
			UserID:   1,
			Currency: model.CurrencyTHB,
			Amount:   decimal.NewFromInt(90),
			Before:   decimal.NewFromInt(200),
			After:    decimal.NewFromInt(110),
		})
		require.Len(t, entry.Details.Changes, 1)
		assert.Equal(t, model.AuditChange{Field: "credit_balance", Old: "200", New: "110"}, entry.Details.Changes[0])
	})

	t.Run("PromoRecordsUsageTransition", func(t *testing.T) {
		entry := Encode(PromoRedeemed{UserID: 1, PromoCodeID: 5, Code: "SAVE10", UsedCount: 3})
		require.Len(t, entry.Details.Changes, 1)
		assert.Equal(t, model.AuditChange{Field: "used_count", Old: int64(2), New: int64(3)}, entry.Details.Changes[0])
	})

	t.Run("TopupActorIsAdmin", func(t *testing.T) {
		entry := Encode(TopupApproved{AdminID: 100, TopupID: 8, UserID: 1})
		assert.Equal(t, uint64(100), *entry.UserID)
	})
}

func TestGormRecorder(t *testing.T) {
	db := dbtest.Open(t)
	repo := repository.NewAuditRepository(db)
	rec := NewGormRecorder(repo)
	ctx := context.Background()

	require.NoError(t, rec.Record(ctx,
		TopupApproved{AdminID: 100, TopupID: 8, UserID: 1, Amount: decimal.NewFromInt(500)},
		TopupRejected{AdminID: 100, TopupID: 9, UserID: 1, Reason: "duplicate slip"},
	))
	require.NoError(t, rec.Record(ctx))

	logs, err := repo.ListByResource(ctx, ResourceTopup, "8")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, ActionTopupApprove, logs[0].Action)
	require.Len(t, logs[0].Details.Changes, 1)
	assert.Equal(t, model.TopupStatusApproved, logs[0].Details.Changes[0].New)
}

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

func TestKafkaRecorder(t *testing.T) {
	writer := new(mockWriter)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := &KafkaRecorder{writer: writer, now: func() time.Time { return fixed }}

	writer.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		if len(msgs) != 2 {
			return false
		}
		var entry model.AuditLog
		if err := json.Unmarshal(msgs[0].Value, &entry); err != nil {
			return false
		}
		return string(msgs[0].Key) == "stock_record:77" &&
			string(msgs[1].Key) == "user:1" &&
			entry.Action == ActionPurchase &&
			entry.CreatedAt.Equal(fixed)
	})).Return(nil).Once()

	err := rec.Record(context.Background(),
		StockConsumed{UserID: 1, PurchaseID: 9, ProductID: 3, StockRecordID: 77},
		BalanceDebited{UserID: 1, PurchaseID: 9, Currency: model.CurrencyTHB, Amount: decimal.NewFromInt(90)},
	)
	require.NoError(t, err)
	writer.AssertExpectations(t)

	writer.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()
	err = rec.Record(context.Background(), ProductSold{UserID: 1, ProductID: 3})
	assert.ErrorContains(t, err, "broker down")
}

type failingSink struct{}

func (failingSink) Name() string { return "failing" }

func (failingSink) Record(context.Context, ...Event) error { return errors.New("disk full") }

type countingSink struct{ n int }

func (c *countingSink) Name() string { return "counting" }

func (c *countingSink) Record(_ context.Context, events ...Event) error {
	c.n += len(events)
	return nil
}

func TestMulti(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := monitor.NewMetrics(reg, "test")
	counter := &countingSink{}

	rec := Multi(metrics, failingSink{}, counter, LogRecorder{}, Nop{})
	err := rec.Record(context.Background(), ProductSold{UserID: 1, ProductID: 3}, PromoRedeemed{UserID: 1, PromoCodeID: 2})

	assert.ErrorContains(t, err, "failing: disk full")
	assert.Equal(t, 2, counter.n, "healthy sinks still receive events")

	count, err := testutil.GatherAndCount(reg, "test_audit_events_dropped_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

type flakySink struct {
	calls int
	err   error
}

func (f *flakySink) Name() string { return "kafka" }

func (f *flakySink) Record(context.Context, ...Event) error {
	f.calls++
	return f.err
}

func TestGuarded(t *testing.T) {
	sink := &flakySink{err: errors.New("broker unreachable")}
	rec := Guarded(sink, breaker.New("audit-kafka", breaker.Config{
		Timeout:     time.Minute,
		ReadyToTrip: func(c breaker.Counts) bool { return c.ConsecutiveFailures >= 2 },
	}))
	assert.Equal(t, "kafka", rec.Name())

	ctx := context.Background()
	assert.ErrorContains(t, rec.Record(ctx, ProductSold{UserID: 1, ProductID: 1}), "broker unreachable")
	assert.ErrorContains(t, rec.Record(ctx, ProductSold{UserID: 1, ProductID: 1}), "broker unreachable")

	err := rec.Record(ctx, ProductSold{UserID: 1, ProductID: 1})
	assert.ErrorIs(t, err, breaker.ErrOpen)
	assert.Equal(t, 2, sink.calls, "open breaker skips the sink")
}
