package topup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"gameshop/internal/audit"
	"gameshop/internal/database/dbtest"
	"gameshop/internal/model"
	"gameshop/internal/repository"
	"gameshop/internal/service/ledger"
	"gameshop/pkg/lock"
	"gameshop/pkg/utils"
)

const adminID = 900

func setupTopup(t *testing.T, locker *lock.Locker) (TopupService, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	users := repository.NewUserRepository(db)

	svc := NewTopupService(Deps{
		DB:       db,
		Users:    users,
		Topups:   repository.NewTopupRepository(db),
		Ledger:   ledger.NewLedgerService(users, repository.NewLedgerRepository(db), ledger.Tiers{}),
		Recorder: audit.NewGormRecorder(repository.NewAuditRepository(db)),
		Locker:   locker,
	}, dbtestTxOptions())
	return svc, db
}

func submit(t *testing.T, svc TopupService, userID uint64, amount, ref string) *model.TopupRequest {
	t.Helper()
	topup, err := svc.Submit(context.Background(), SubmitRequest{
		UserID:         userID,
		Amount:         decimal.RequireFromString(amount),
		SenderBank:     "KBank",
		TransactionRef: ref,
		ProofImage:     "/uploads/slip.png",
	})
	require.NoError(t, err)
	return topup
}

func TestSubmit(t *testing.T) {
	svc, db := setupTopup(t, nil)
	user := dbtest.User(t, db, "payer", "0")

	topup := submit(t, svc, user.ID, "500.25", "TX-1")
	assert.Equal(t, model.TopupStatusPending, topup.Status)

	tests := []struct {
		name string
		req  SubmitRequest
		want error
	}{
		{"DuplicateRef", SubmitRequest{UserID: user.ID, Amount: decimal.NewFromInt(1), SenderBank: "SCB", TransactionRef: "TX-1", ProofImage: "x"}, utils.ErrValidation},
		{"ZeroAmount", SubmitRequest{UserID: user.ID, Amount: decimal.Zero, SenderBank: "SCB", TransactionRef: "TX-2", ProofImage: "x"}, utils.ErrValidation},
		{"SubSatang", SubmitRequest{UserID: user.ID, Amount: decimal.RequireFromString("1.001"), SenderBank: "SCB", TransactionRef: "TX-3", ProofImage: "x"}, utils.ErrValidation},
		{"MissingBank", SubmitRequest{UserID: user.ID, Amount: decimal.NewFromInt(1), TransactionRef: "TX-4", ProofImage: "x"}, utils.ErrValidation},
		{"UnknownUser", SubmitRequest{UserID: 404, Amount: decimal.NewFromInt(1), SenderBank: "SCB", TransactionRef: "TX-5", ProofImage: "x"}, utils.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestApproveIsIdempotent(t *testing.T) {
	svc, db := setupTopup(t, nil)
	ctx := context.Background()
	user := dbtest.User(t, db, "payer", "10")
	topup := submit(t, svc, user.ID, "500", "TX-1")

	approved, err := svc.Approve(ctx, topup.ID, adminID)
	require.NoError(t, err)
	assert.Equal(t, model.TopupStatusApproved, approved.Status)
	require.NotNil(t, approved.ProcessedBy)
	assert.Equal(t, uint64(adminID), *approved.ProcessedBy)

	_, err = svc.Approve(ctx, topup.ID, adminID)
	assert.ErrorIs(t, err, utils.ErrAlreadyProcessed)

	_, err = svc.Reject(ctx, topup.ID, adminID, "too late")
	assert.ErrorIs(t, err, utils.ErrAlreadyProcessed)

	dbtest.Reload(t, db, user)
	assert.True(t, user.CreditBalance.Equal(decimal.NewFromInt(510)), user.CreditBalance.String())
	assert.True(t, user.TotalTopup.Equal(decimal.NewFromInt(500)))

	var logs []model.AuditLog
	require.NoError(t, db.Order("id").Find(&logs).Error)
	require.Len(t, logs, 2)
	assert.Equal(t, audit.ActionTopupApprove, logs[0].Action)
	assert.Equal(t, audit.ActionCredit, logs[1].Action)
}

func TestConcurrentApprovalsCreditOnce(t *testing.T) {
	svc, db := setupTopup(t, nil)
	user := dbtest.User(t, db, "payer", "0")
	topup := submit(t, svc, user.ID, "250", "TX-1")

	const admins = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		approved  int
		processed int
	)
	for i := 0; i < admins; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Approve(context.Background(), topup.ID, adminID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				approved++
			case errors.Is(err, utils.ErrAlreadyProcessed):
				processed++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, approved)
	assert.Equal(t, admins-1, processed)

	dbtest.Reload(t, db, user)
	assert.True(t, user.CreditBalance.Equal(decimal.NewFromInt(250)))

	var credits int64
	require.NoError(t, db.Model(&model.LedgerEntry{}).Where("ref_type = ?", model.RefTypeTopup).Count(&credits).Error)
	assert.Equal(t, int64(1), credits)
}

func TestReject(t *testing.T) {
	svc, db := setupTopup(t, nil)
	ctx := context.Background()
	user := dbtest.User(t, db, "payer", "10")
	topup := submit(t, svc, user.ID, "500", "TX-1")

	_, err := svc.Reject(ctx, topup.ID, adminID, "   ")
	assert.ErrorIs(t, err, utils.ErrValidation)

	rejected, err := svc.Reject(ctx, topup.ID, adminID, "amount does not match slip")
	require.NoError(t, err)
	assert.Equal(t, model.TopupStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectReason)

	_, err = svc.Approve(ctx, topup.ID, adminID)
	assert.ErrorIs(t, err, utils.ErrAlreadyProcessed)

	dbtest.Reload(t, db, user)
	assert.True(t, user.CreditBalance.Equal(decimal.NewFromInt(10)))
	assert.True(t, user.TotalTopup.IsZero())
}

func TestAct(t *testing.T) {
	svc, db := setupTopup(t, nil)
	ctx := context.Background()
	user := dbtest.User(t, db, "payer", "0")
	first := submit(t, svc, user.ID, "100", "TX-1")
	second := submit(t, svc, user.ID, "100", "TX-2")

	res, err := svc.Act(ctx, adminID, ActionRequest{ID: first.ID, Action: ActionApprove})
	require.NoError(t, err)
	assert.Equal(t, model.TopupStatusApproved, res.Status)

	res, err = svc.Act(ctx, adminID, ActionRequest{ID: second.ID, Action: "reject", Reason: "fake slip"})
	require.NoError(t, err)
	assert.Equal(t, model.TopupStatusRejected, res.Status)

	_, err = svc.Act(ctx, adminID, ActionRequest{ID: second.ID, Action: "REFUND"})
	assert.ErrorIs(t, err, utils.ErrValidation)

	_, err = svc.Act(ctx, adminID, ActionRequest{ID: 999, Action: ActionApprove})
	assert.ErrorIs(t, err, utils.ErrNotFound)

	list, total, err := svc.List(ctx, "approved", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, first.ID, list[0].ID)

	_, _, err = svc.List(ctx, "LOST", 1, 10)
	assert.ErrorIs(t, err, utils.ErrValidation)
}

func TestRedisLockFastFails(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	locker := lock.NewLocker(client, "topup:", 5*time.Second)

	svc, db := setupTopup(t, locker)
	ctx := context.Background()
	user := dbtest.User(t, db, "payer", "0")
	topup := submit(t, svc, user.ID, "100", "TX-1")

	held := lock.NewRedisLock(client, "topup:"+itoa(topup.ID), 5*time.Second)
	require.NoError(t, held.Lock(ctx))

	_, err = svc.Approve(ctx, topup.ID, adminID)
	assert.ErrorIs(t, err, utils.ErrAlreadyProcessed)

	require.NoError(t, held.Unlock(ctx))
	_, err = svc.Approve(ctx, topup.ID, adminID)
	require.NoError(t, err)
	assert.False(t, mr.Exists("topup:"+itoa(topup.ID)), "lock released after approval")

	mr.Close()
	second := submit(t, svc, user.ID, "5", "TX-2")
	_, err = svc.Approve(ctx, second.ID, adminID)
	assert.NoError(t, err, "row lock still protects approvals when redis is down")
}
