// Package postgres carries pgx transactions through a context so that the
// wallet and ledger repositories can share one atomic unit.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/storage"
)

// SQLSTATE codes mapped onto application error kinds.
const (
	codeLockNotAvailable    = "55P03"
	codeDeadlockDetected    = "40P01"
	codeSerialization       = "40001"
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeNumericOutOfRange   = "22003"
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// Transactor opens pgx transactions and hands them down through the context.
type Transactor struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewTransactor builds a Transactor. A positive lockTimeout is applied to every
// unit with SET LOCAL lock_timeout so blocking row locks cannot wait forever.
func NewTransactor(pool *pgxpool.Pool, lockTimeout time.Duration) *Transactor {
	return &Transactor{pool: pool, lockTimeout: lockTimeout}
}

// InTx implements storage.Transactor. Nested calls join the outer transaction.
func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if t.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", t.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return Classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Conn returns the transaction carried by ctx, or the pool when there is none.
func Conn(ctx context.Context, pool *pgxpool.Pool) Querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// TxFrom returns the transaction carried by ctx or storage.ErrNoUnit.
func TxFrom(ctx context.Context) (pgx.Tx, error) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	if !ok {
		return nil, storage.ErrNoUnit
	}
	return tx, nil
}

// LockClause returns the row-locking suffix for a SELECT.
func LockClause(mode storage.LockMode) string {
	if mode == storage.LockNoWait {
		return " FOR UPDATE NOWAIT"
	}
	return " FOR UPDATE"
}

// Classify wraps known Postgres failures with the matching application error
// kind and passes anything else through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeLockNotAvailable, codeDeadlockDetected, codeSerialization:
		return fmt.Errorf("%w: %s", apperr.ErrResourceBusy, pgErr.Message)
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s", apperr.ErrDuplicateKey, pgErr.ConstraintName)
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %s", apperr.ErrReferentialIntegrity, pgErr.ConstraintName)
	case codeCheckViolation:
		return fmt.Errorf("%w: %s", apperr.ErrInvariantViolation, pgErr.ConstraintName)
	case codeNumericOutOfRange:
		return apperr.Invalid("numeric value out of range")
	default:
		return err
	}
}
