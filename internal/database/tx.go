package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gameshop/pkg/log"
	"gameshop/pkg/utils"
)

// TxOptions controls isolation and the retry budget of Transaction
type TxOptions struct {
	IsolationLevel sql.IsolationLevel
	MaxRetries     int
	BaseBackoff    time.Duration

	// OnRetry, when set, runs before each re-run of the closure
	OnRetry func(attempt int, err error)
}

// DefaultTxOptions returns read-committed with three retries
func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel: sql.LevelReadCommitted,
		MaxRetries:     3,
		BaseBackoff:    20 * time.Millisecond,
	}
}

// errCommit marks a failure of the COMMIT itself; its outcome is unknown so
// the closure must not be replayed.
type errCommit struct{ err error }

func (e *errCommit) Error() string { return "commit transaction: " + e.err.Error() }
func (e *errCommit) Unwrap() error { return e.err }

// Transaction runs fn inside one database transaction bound to ctx.
// Retryable failures (row conflicts, deadlocks, busy databases) re-run the
// whole closure with jittered exponential backoff. When retries run out the
// caller gets ErrConcurrencyConflict.
func Transaction(ctx context.Context, db *gorm.DB, opts TxOptions, fn func(tx *gorm.DB) error) error {
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 20 * time.Millisecond
	}
	backoff := opts.BaseBackoff

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := runOnce(ctx, db, opts, fn)
		if err == nil {
			return nil
		}

		var commitErr *errCommit
		if errors.As(err, &commitErr) || !IsRetryable(err) {
			return err
		}

		if attempt >= opts.MaxRetries {
			log.WithContext(ctx).WithError(err).WithField("attempts", attempt+1).
				Warn("transaction retries exhausted")
			if errors.Is(err, utils.ErrConcurrencyConflict) {
				return err
			}
			return fmt.Errorf("%w: %v", utils.ErrConcurrencyConflict, err)
		}

		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, err)
		}

		jitter := time.Duration(rand.Int63n(int64(backoff/2) + 1))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
}

func runOnce(ctx context.Context, db *gorm.DB, opts TxOptions, fn func(tx *gorm.DB) error) (err error) {
	var txOpts *sql.TxOptions
	if db.Dialector.Name() != "sqlite" {
		txOpts = &sql.TxOptions{Isolation: opts.IsolationLevel}
	}

	tx := db.WithContext(ctx).Begin(txOpts)
	if tx.Error != nil {
		return fmt.Errorf("begin transaction: %w", tx.Error)
	}

	committed := false
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
		if !committed {
			tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return &errCommit{err: err}
	}
	committed = true
	return nil
}

// ForUpdate adds a row lock to the next query. SQLite serializes writers
// on its own and has no FOR UPDATE.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

// ForUpdateSkipLocked locks the row without waiting on rows other
// transactions already hold.
func ForUpdateSkipLocked(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked})
}
