package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
)

const accountColumns = `user_id, iban, name, balance, opening_balance, version, created_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	return r.GetInTx(ctx, nil, userID)
}

// GetInTx reads the account without locking it. A nil tx reads from the pool.
func (r *AccountRepository) GetInTx(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (*domain.Account, error) {
	row := on(r.db, tx).QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetInTx: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetInTx: %w", err)
	}
	return a, nil
}

// GetByIBANAndName resolves a transfer receiver. Both fields must match.
func (r *AccountRepository) GetByIBANAndName(ctx context.Context, iban, name string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE iban = $1 AND name = $2`,
		domain.NormalizeIBAN(iban), strings.TrimSpace(name),
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByIBANAndName: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByIBANAndName: %w", err)
	}
	return a, nil
}

// List returns every account. A nil tx reads from the pool.
func (r *AccountRepository) List(ctx context.Context, tx *sql.Tx) ([]domain.Account, error) {
	rows, err := on(r.db, tx).QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY created_at, user_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("List: scan: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: rows: %w", err)
	}
	return accounts, nil
}

func (r *AccountRepository) Create(ctx context.Context, tx *sql.Tx, account *domain.Account) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (user_id, iban, name, balance, opening_balance, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		account.UserID, account.IBAN, account.Name,
		account.Balance, account.OpeningBalance, account.Version, account.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "accounts_iban_key") {
			return fmt.Errorf("Create: iban %s already issued: %w", account.IBAN, domain.ErrStoreConflict)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// GetForUpdate reads the account and holds its row lock until tx ends.
func (r *AccountRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (*domain.Account, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 FOR UPDATE`, userID,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", classify(err))
	}
	return a, nil
}

// AdjustBalance applies delta in one statement that refuses to take the balance
// below zero, and returns the updated row.
func (r *AccountRepository) AdjustBalance(ctx context.Context, tx *sql.Tx, userID uuid.UUID, delta domain.Money) (*domain.Account, error) {
	row := tx.QueryRowContext(ctx,
		`UPDATE accounts SET balance = balance + $1, version = version + 1
		WHERE user_id = $2 AND balance + $1 >= 0
		RETURNING `+accountColumns,
		delta, userID,
	)
	a, err := scanAccount(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("AdjustBalance: %w", classify(err))
	}

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE user_id = $1)`, userID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("AdjustBalance: %w", classify(err))
	}
	if !exists {
		return nil, fmt.Errorf("AdjustBalance: %w", domain.ErrNotFound)
	}
	return nil, fmt.Errorf("AdjustBalance: %w", domain.ErrInsufficientFunds)
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	err := s.Scan(
		&a.UserID, &a.IBAN, &a.Name,
		&a.Balance, &a.OpeningBalance, &a.Version,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
