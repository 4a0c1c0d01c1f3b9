package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"gameshop/internal/database"
	"gameshop/internal/model"
	"gameshop/internal/repository"
	"gameshop/pkg/log"
	"gameshop/pkg/utils"
)

// recentEntries bounds the journal excerpt returned by Balance
const recentEntries = 20

// Ref names the event that moved money
type Ref struct {
	Type string
	ID   uint64
}

// Movement is one applied balance change
type Movement struct {
	EntryID       uint64          `json:"entryId"`
	UserID        uint64          `json:"userId"`
	Currency      string          `json:"currency"`
	Direction     string          `json:"direction"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balanceBefore"`
	BalanceAfter  decimal.Decimal `json:"balanceAfter"`
}

// Tiers holds the thresholds of the derived user tiers
type Tiers struct {
	VIPTopup         decimal.Decimal
	GoldBorderPoints int64
}

// BalanceView is the read model of a user's wallet
type BalanceView struct {
	UserID         uint64               `json:"userId"`
	CreditBalance  decimal.Decimal      `json:"creditBalance"`
	PointBalance   int64                `json:"pointBalance"`
	TotalTopup     decimal.Decimal      `json:"totalTopup"`
	TotalSpent     decimal.Decimal      `json:"totalSpent"`
	LifetimePoints int64                `json:"lifetimePoints"`
	IsVIP          bool                 `json:"isVip"`
	HasGoldBorder  bool                 `json:"hasGoldBorder"`
	Recent         []*model.LedgerEntry `json:"recent"`
}

// LedgerService moves THB credit and points. Debit and Credit only run
// inside a caller's transaction.
type LedgerService interface {
	Debit(ctx context.Context, tx *gorm.DB, userID uint64, currency string, amount decimal.Decimal, ref Ref) (*Movement, error)
	Credit(ctx context.Context, tx *gorm.DB, userID uint64, currency string, amount decimal.Decimal, reason string, ref Ref) (*Movement, error)
	Balance(ctx context.Context, userID uint64) (*BalanceView, error)
}

type ledgerService struct {
	users   repository.UserRepository
	journal repository.LedgerRepository
	tiers   Tiers
}

// NewLedgerService creates a ledger service
func NewLedgerService(users repository.UserRepository, journal repository.LedgerRepository, tiers Tiers) LedgerService {
	return &ledgerService{
		users:   users,
		journal: journal,
		tiers:   tiers,
	}
}

func checkAmount(currency string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return utils.Validationf("amount must be positive")
	}
	switch currency {
	case model.CurrencyTHB:
		if !amount.Equal(amount.Round(2)) {
			return utils.Validationf("THB amount has more than 2 decimal places")
		}
	case model.CurrencyPoint:
		if !amount.Equal(amount.Truncate(0)) {
			return utils.Validationf("point amount must be a whole number")
		}
	default:
		return utils.Validationf("unknown currency %q", currency)
	}
	return nil
}

func (s *ledgerService) Debit(ctx context.Context, tx *gorm.DB, userID uint64, currency string, amount decimal.Decimal, ref Ref) (*Movement, error) {
	if err := checkAmount(currency, amount); err != nil {
		return nil, err
	}

	users := s.users.WithTx(tx)
	user, err := users.GetForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}

	mv := &Movement{
		UserID:    userID,
		Currency:  currency,
		Direction: model.DirectionDebit,
		Amount:    amount,
	}

	if currency == model.CurrencyTHB {
		mv.BalanceBefore = user.CreditBalance
	} else {
		mv.BalanceBefore = decimal.NewFromInt(user.PointBalance)
	}
	if mv.BalanceBefore.LessThan(amount) {
		return nil, fmt.Errorf("debit %s %s from user %d: %w", amount, currency, userID, utils.ErrInsufficientBalance)
	}
	mv.BalanceAfter = mv.BalanceBefore.Sub(amount)

	if err := s.appendEntry(ctx, tx, mv, ref.Type, ref); err != nil {
		return nil, err
	}

	var applied bool
	if currency == model.CurrencyTHB {
		applied, err = users.SetCredit(ctx, userID, amount, mv.BalanceAfter)
	} else {
		applied, err = users.DebitPoints(ctx, userID, amount.IntPart())
	}
	if err != nil {
		return nil, fmt.Errorf("debit user %d: %w", userID, err)
	}
	if !applied {
		return nil, fmt.Errorf("debit user %d: %w", userID, utils.ErrInsufficientBalance)
	}

	log.WithContext(ctx).WithFields(map[string]interface{}{
		"user_id":  userID,
		"currency": currency,
		"amount":   amount.String(),
		"ref":      fmt.Sprintf("%s:%d", ref.Type, ref.ID),
	}).Debug("Balance debited")

	return mv, nil
}

func (s *ledgerService) Credit(ctx context.Context, tx *gorm.DB, userID uint64, currency string, amount decimal.Decimal, reason string, ref Ref) (*Movement, error) {
	if err := checkAmount(currency, amount); err != nil {
		return nil, err
	}

	users := s.users.WithTx(tx)
	user, err := users.GetForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}

	mv := &Movement{
		UserID:    userID,
		Currency:  currency,
		Direction: model.DirectionCredit,
		Amount:    amount,
	}
	if currency == model.CurrencyTHB {
		mv.BalanceBefore = user.CreditBalance
	} else {
		mv.BalanceBefore = decimal.NewFromInt(user.PointBalance)
	}
	mv.BalanceAfter = mv.BalanceBefore.Add(amount)

	// The journal insert goes first so a replayed ref fails before any
	// balance is touched.
	if err := s.appendEntry(ctx, tx, mv, reason, ref); err != nil {
		return nil, err
	}

	switch {
	case currency == model.CurrencyPoint:
		err = users.CreditPoints(ctx, userID, amount.IntPart())
	case reason == model.ReasonTopup:
		err = users.AddTopup(ctx, userID, mv.BalanceAfter, user.TotalTopup.Add(amount))
	default:
		_, err = users.SetCredit(ctx, userID, decimal.Zero, mv.BalanceAfter)
	}
	if err != nil {
		return nil, fmt.Errorf("credit user %d: %w", userID, err)
	}

	log.WithContext(ctx).WithFields(map[string]interface{}{
		"user_id":  userID,
		"currency": currency,
		"amount":   amount.String(),
		"reason":   reason,
	}).Debug("Balance credited")

	return mv, nil
}

func (s *ledgerService) appendEntry(ctx context.Context, tx *gorm.DB, mv *Movement, reason string, ref Ref) error {
	entry := &model.LedgerEntry{
		UserID:        mv.UserID,
		Currency:      mv.Currency,
		Direction:     mv.Direction,
		Amount:        mv.Amount,
		BalanceBefore: mv.BalanceBefore,
		BalanceAfter:  mv.BalanceAfter,
		Reason:        reason,
		RefType:       ref.Type,
		RefID:         ref.ID,
	}
	if err := s.journal.WithTx(tx).Append(ctx, entry); err != nil {
		if database.IsDuplicateKey(err) {
			return fmt.Errorf("%s %s for %s %d: %w", mv.Direction, mv.Currency, ref.Type, ref.ID, utils.ErrAlreadyProcessed)
		}
		return fmt.Errorf("append ledger entry: %w", err)
	}
	mv.EntryID = entry.ID
	return nil
}

func (s *ledgerService) Balance(ctx context.Context, userID uint64) (*BalanceView, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	recent, err := s.journal.ListByUser(ctx, userID, recentEntries)
	if err != nil {
		return nil, err
	}

	spent, err := s.journal.Sum(ctx, userID, model.CurrencyTHB, model.DirectionDebit)
	if err != nil {
		return nil, err
	}

	return &BalanceView{
		UserID:         user.ID,
		CreditBalance:  user.CreditBalance,
		PointBalance:   user.PointBalance,
		TotalTopup:     user.TotalTopup,
		TotalSpent:     spent,
		LifetimePoints: user.LifetimePoints,
		IsVIP:          user.IsVIP(s.tiers.VIPTopup),
		HasGoldBorder:  user.HasGoldBorder(s.tiers.GoldBorderPoints),
		Recent:         recent,
	}, nil
}
