package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
)

type scanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// on picks tx when the caller has one and the pool otherwise.
func on(db *sql.DB, tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return db
}

// Postgres SQLSTATE codes the ledger reacts to.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeNumericOutOfRange    = "22003"
)

type DB struct {
	pool *sql.DB
}

func NewDB(pool *sql.DB) *DB {
	return &DB{pool: pool}
}

// WithinTx runs fn inside a read-committed transaction and commits when fn
// returns nil. Contention reported by Postgres comes back as domain.ErrStoreConflict.
func (d *DB) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.pool.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("WithinTx: begin: %w", classify(err))
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("WithinTx: commit: %w", classify(err))
	}
	return nil
}

// WithinReadTx runs fn in a read-only repeatable-read transaction, so every
// query inside it sees the same snapshot.
func (d *DB) WithinReadTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.pool.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("WithinReadTx: begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("WithinReadTx: commit: %w", err)
	}
	return nil
}

// classify maps driver errors onto domain kinds, keeping the original in the chain.
func classify(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		if errors.Is(err, domain.ErrStoreConflict) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrStoreConflict, err)
	case codeCheckViolation:
		if pqErr.Constraint == "accounts_balance_non_negative" && !errors.Is(err, domain.ErrInsufficientFunds) {
			return fmt.Errorf("%w: %w", domain.ErrInsufficientFunds, err)
		}
	case codeNumericOutOfRange:
		if !errors.Is(err, domain.ErrInvalidAmount) {
			return fmt.Errorf("%w: %w", domain.ErrInvalidAmount, err)
		}
	}
	return err
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation && pqErr.Constraint == constraint
}
