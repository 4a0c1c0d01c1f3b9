package topup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"gameshop/internal/audit"
	"gameshop/internal/database"
	"gameshop/internal/model"
	"gameshop/internal/monitor"
	"gameshop/internal/repository"
	"gameshop/internal/service/ledger"
	"gameshop/pkg/lock"
	"gameshop/pkg/log"
	"gameshop/pkg/utils"
)

// Admin actions accepted by Act
const (
	ActionApprove = "APPROVE"
	ActionReject  = "REJECT"
)

// SubmitRequest is a user's bank transfer slip
type SubmitRequest struct {
	UserID         uint64
	Amount         decimal.Decimal
	SenderBank     string
	TransactionRef string
	ProofImage     string
}

// ActionRequest is the admin decision payload. Action is matched
// case-insensitively by Act.
type ActionRequest struct {
	ID     uint64 `json:"id" binding:"required,gt=0"`
	Action string `json:"action" binding:"required"`
	Reason string `json:"reason"`
}

// TopupService handles the PENDING -> APPROVED/REJECTED workflow
type TopupService interface {
	Submit(ctx context.Context, req SubmitRequest) (*model.TopupRequest, error)
	Approve(ctx context.Context, topupID, adminID uint64) (*model.TopupRequest, error)
	Reject(ctx context.Context, topupID, adminID uint64, reason string) (*model.TopupRequest, error)
	Act(ctx context.Context, adminID uint64, req ActionRequest) (*model.TopupRequest, error)
	List(ctx context.Context, status string, page, pageSize int) ([]*model.TopupRequest, int64, error)
}

// Deps are the collaborators of the topup service
type Deps struct {
	DB       *gorm.DB
	Users    repository.UserRepository
	Topups   repository.TopupRepository
	Ledger   ledger.LedgerService
	Recorder audit.Recorder
	Locker   *lock.Locker
	Metrics  *monitor.Metrics
}

type topupService struct {
	Deps
	txOptions database.TxOptions
	now       func() time.Time
}

// NewTopupService creates a topup service. A nil Locker skips the Redis
// fast path; the row lock alone keeps approvals exactly-once.
func NewTopupService(deps Deps, txOptions database.TxOptions) TopupService {
	if deps.Recorder == nil {
		deps.Recorder = audit.Nop{}
	}
	if txOptions.MaxRetries == 0 {
		txOptions = database.DefaultTxOptions()
	}
	s := &topupService{Deps: deps, txOptions: txOptions, now: time.Now}
	s.txOptions.OnRetry = func(int, error) {
		s.Metrics.IncTxRetry("topup")
	}
	return s
}

func (s *topupService) Submit(ctx context.Context, req SubmitRequest) (*model.TopupRequest, error) {
	if !req.Amount.IsPositive() {
		return nil, utils.Validationf("amount must be positive")
	}
	if !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, utils.Validationf("amount has more than 2 decimal places")
	}

	topup := &model.TopupRequest{
		UserID:         req.UserID,
		Amount:         req.Amount,
		Status:         model.TopupStatusPending,
		SenderBank:     strings.TrimSpace(req.SenderBank),
		TransactionRef: strings.TrimSpace(req.TransactionRef),
		ProofImage:     strings.TrimSpace(req.ProofImage),
	}
	switch {
	case topup.SenderBank == "":
		return nil, utils.Validationf("senderBank is required")
	case topup.TransactionRef == "":
		return nil, utils.Validationf("transactionRef is required")
	case topup.ProofImage == "":
		return nil, utils.Validationf("proofImage is required")
	}

	if _, err := s.Users.GetByID(ctx, req.UserID); err != nil {
		return nil, err
	}

	if err := s.Topups.Create(ctx, topup); err != nil {
		if database.IsDuplicateKey(err) {
			return nil, utils.Validationf("transaction reference %s was already submitted", topup.TransactionRef)
		}
		return nil, fmt.Errorf("create topup request: %w", err)
	}

	log.WithContext(ctx).WithFields(map[string]interface{}{
		"topup_id": topup.ID,
		"user_id":  topup.UserID,
		"amount":   topup.Amount.String(),
	}).Info("Topup submitted")

	return topup, nil
}

// guard takes the optional Redis lock for one request. The returned
// release func is never nil.
func (s *topupService) guard(ctx context.Context, topupID uint64) (func(), error) {
	if s.Locker == nil {
		return func() {}, nil
	}

	lk, err := s.Locker.Acquire(ctx, strconv.FormatUint(topupID, 10))
	if errors.Is(err, lock.ErrLockFailed) {
		return nil, fmt.Errorf("topup %d is being processed: %w", topupID, utils.ErrAlreadyProcessed)
	}
	if err != nil {
		log.WithContext(ctx).WithError(err).Warn("Topup lock unavailable, relying on row lock")
		return func() {}, nil
	}

	return func() {
		if err := lk.Unlock(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, lock.ErrLockNotHeld) {
			log.WithContext(ctx).WithError(err).Warn("Failed to release topup lock")
		}
	}, nil
}

func (s *topupService) Approve(ctx context.Context, topupID, adminID uint64) (result *model.TopupRequest, err error) {
	ctx, span := monitor.StartSpan(ctx, "topup.Approve", attribute.Int64("topup.id", int64(topupID)))
	defer func() { monitor.EndSpan(span, err) }()

	release, err := s.guard(ctx, topupID)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		topup *model.TopupRequest
		mv    *ledger.Movement
	)
	err = database.Transaction(ctx, s.DB, s.txOptions, func(tx *gorm.DB) error {
		repo := s.Topups.WithTx(tx)
		t, err := repo.GetForUpdate(ctx, topupID)
		if err != nil {
			return err
		}
		if !t.IsPending() {
			return fmt.Errorf("topup %d is %s: %w", topupID, t.Status, utils.ErrAlreadyProcessed)
		}

		mv, err = s.Ledger.Credit(ctx, tx, t.UserID, model.CurrencyTHB, t.Amount, model.ReasonTopup,
			ledger.Ref{Type: model.RefTypeTopup, ID: t.ID})
		if err != nil {
			return err
		}

		at := s.now()
		ok, err := repo.Resolve(ctx, t.ID, model.TopupStatusApproved, adminID, nil, at)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("topup %d: %w", topupID, utils.ErrAlreadyProcessed)
		}

		t.Status = model.TopupStatusApproved
		t.ProcessedBy = &adminID
		t.ProcessedAt = &at
		topup = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.IncTopupDecision("approve")
	s.record(ctx,
		audit.TopupApproved{AdminID: adminID, TopupID: topup.ID, UserID: topup.UserID, Amount: topup.Amount},
		audit.BalanceCredited{
			UserID:   topup.UserID,
			Currency: model.CurrencyTHB,
			Reason:   model.ReasonTopup,
			RefType:  model.RefTypeTopup,
			RefID:    topup.ID,
			Amount:   mv.Amount,
			Before:   mv.BalanceBefore,
			After:    mv.BalanceAfter,
		},
	)

	log.WithContext(ctx).WithFields(map[string]interface{}{
		"topup_id": topup.ID,
		"user_id":  topup.UserID,
		"admin_id": adminID,
		"amount":   topup.Amount.String(),
	}).Info("Topup approved")

	return topup, nil
}

func (s *topupService) Reject(ctx context.Context, topupID, adminID uint64, reason string) (result *model.TopupRequest, err error) {
	ctx, span := monitor.StartSpan(ctx, "topup.Reject", attribute.Int64("topup.id", int64(topupID)))
	defer func() { monitor.EndSpan(span, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, utils.Validationf("reject reason is required")
	}

	release, err := s.guard(ctx, topupID)
	if err != nil {
		return nil, err
	}
	defer release()

	var topup *model.TopupRequest
	err = database.Transaction(ctx, s.DB, s.txOptions, func(tx *gorm.DB) error {
		repo := s.Topups.WithTx(tx)
		t, err := repo.GetForUpdate(ctx, topupID)
		if err != nil {
			return err
		}
		if !t.IsPending() {
			return fmt.Errorf("topup %d is %s: %w", topupID, t.Status, utils.ErrAlreadyProcessed)
		}

		at := s.now()
		ok, err := repo.Resolve(ctx, t.ID, model.TopupStatusRejected, adminID, &reason, at)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("topup %d: %w", topupID, utils.ErrAlreadyProcessed)
		}

		t.Status = model.TopupStatusRejected
		t.RejectReason = &reason
		t.ProcessedBy = &adminID
		t.ProcessedAt = &at
		topup = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.IncTopupDecision("reject")
	s.record(ctx, audit.TopupRejected{AdminID: adminID, TopupID: topup.ID, UserID: topup.UserID, Reason: reason})

	log.WithContext(ctx).WithFields(map[string]interface{}{
		"topup_id": topup.ID,
		"admin_id": adminID,
		"reason":   reason,
	}).Info("Topup rejected")

	return topup, nil
}

func (s *topupService) Act(ctx context.Context, adminID uint64, req ActionRequest) (*model.TopupRequest, error) {
	if req.ID == 0 {
		return nil, utils.Validationf("id is required")
	}
	switch strings.ToUpper(req.Action) {
	case ActionApprove:
		return s.Approve(ctx, req.ID, adminID)
	case ActionReject:
		return s.Reject(ctx, req.ID, adminID, req.Reason)
	default:
		return nil, utils.Validationf("action must be one of: %s %s", ActionApprove, ActionReject)
	}
}

func (s *topupService) List(ctx context.Context, status string, page, pageSize int) ([]*model.TopupRequest, int64, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	switch status {
	case "", model.TopupStatusPending, model.TopupStatusApproved, model.TopupStatusRejected:
	default:
		return nil, 0, utils.Validationf("unknown status %q", status)
	}
	page, pageSize = utils.ValidatePage(page, pageSize)
	return s.Topups.ListByStatus(ctx, status, page, pageSize)
}

func (s *topupService) record(ctx context.Context, events ...audit.Event) {
	if err := s.Recorder.Record(context.WithoutCancel(ctx), events...); err != nil {
		log.WithContext(ctx).WithError(err).Warn("Failed to record topup audit events")
	}
}
