package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
	"github.com/josh-kwaku/brokerage-ledger/internal/id"
	"github.com/josh-kwaku/brokerage-ledger/internal/logging"
)

func (e *Engine) Deposit(ctx context.Context, userID uuid.UUID, amount domain.Money) (domain.Money, error) {
	if err := validateAmount(amount); err != nil {
		return domain.Zero, fmt.Errorf("Deposit: %w", err)
	}

	var balance domain.Money
	err := e.runInTx(ctx, "Deposit", func(tx *sql.Tx) error {
		if _, err := e.lockAccount(ctx, tx, userID); err != nil {
			return err
		}
		acct, err := e.applyCashMovement(ctx, tx, userID, domain.EntryKindDeposit, amount, nil)
		if err != nil {
			return err
		}
		balance = acct.Balance
		return nil
	})
	if err != nil {
		return domain.Zero, err
	}

	logging.FromContext(ctx).Info("deposit committed",
		"user_id", userID,
		"amount", amount,
		"balance", balance,
	)
	return balance, nil
}

func (e *Engine) Withdraw(ctx context.Context, userID uuid.UUID, amount domain.Money) (domain.Money, error) {
	if err := validateAmount(amount); err != nil {
		return domain.Zero, fmt.Errorf("Withdraw: %w", err)
	}
	if err := e.checkLimit(amount); err != nil {
		return domain.Zero, fmt.Errorf("Withdraw: %w", err)
	}

	var balance domain.Money
	err := e.runInTx(ctx, "Withdraw", func(tx *sql.Tx) error {
		acct, err := e.lockAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		if acct.Balance.LessThan(amount) {
			return fmt.Errorf("balance %s below %s: %w", acct.Balance, amount, domain.ErrInsufficientFunds)
		}
		acct, err = e.applyCashMovement(ctx, tx, userID, domain.EntryKindWithdraw, amount.Neg(), nil)
		if err != nil {
			return err
		}
		balance = acct.Balance
		return nil
	})
	if err != nil {
		return domain.Zero, err
	}

	logging.FromContext(ctx).Info("withdrawal committed",
		"user_id", userID,
		"amount", amount,
		"balance", balance,
	)
	return balance, nil
}

func (e *Engine) GetBalance(ctx context.Context, userID uuid.UUID) (domain.Money, error) {
	acct, err := e.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return domain.Zero, fmt.Errorf("GetBalance: %w", err)
	}
	return acct.Balance, nil
}

func (e *Engine) Journal(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.JournalEntry, int, error) {
	entries, total, err := e.journal.EntriesFor(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("Journal: %w", err)
	}
	return entries, total, nil
}

// applyCashMovement moves the balance by the signed delta and journals it.
// The caller must already hold the account lock.
func (e *Engine) applyCashMovement(ctx context.Context, tx *sql.Tx, userID uuid.UUID, kind domain.EntryKind, delta domain.Money, transferID *uuid.UUID) (*domain.Account, error) {
	acct, err := e.accounts.AdjustBalance(ctx, tx, userID, delta)
	if err != nil {
		return nil, fmt.Errorf("applyCashMovement: %w", err)
	}

	// The database stamps created_at; the id only needs a nearby time.
	entry := &domain.JournalEntry{
		ID:           id.New(e.now()),
		UserID:       userID,
		Kind:         kind,
		Amount:       delta,
		BalanceAfter: acct.Balance,
		TransferID:   transferID,
	}
	if err := e.journal.Append(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("applyCashMovement: journal: %w", err)
	}
	return acct, nil
}
