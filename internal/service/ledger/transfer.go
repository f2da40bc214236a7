package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
	"github.com/josh-kwaku/brokerage-ledger/internal/logging"
)

// Transfer moves funds to the account identified by IBAN and holder name.
// Both balances, the transfer record and both journal rows commit together.
func (e *Engine) Transfer(ctx context.Context, req TransferRequest) (*domain.TransferRecord, error) {
	if err := e.validateTransfer(req); err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}

	receiver, err := e.accounts.GetByIBANAndName(ctx, req.ToIBAN, req.ToName)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("Transfer: %w", domain.ErrReceiverNotFound)
		}
		return nil, fmt.Errorf("Transfer: %w", err)
	}
	if receiver.UserID == req.FromUserID {
		return nil, fmt.Errorf("Transfer: %w", domain.ErrSelfTransfer)
	}

	var rec *domain.TransferRecord
	err = e.runInTx(ctx, "Transfer", func(tx *sql.Tx) error {
		var err error
		rec, err = e.executeTransfer(ctx, tx, req.FromUserID, receiver.UserID, req.Amount)
		return err
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("transfer committed",
		"transfer_id", rec.ID,
		"from_user_id", rec.FromUserID,
		"to_user_id", rec.ToUserID,
		"amount", rec.Amount,
	)
	return rec, nil
}

func (e *Engine) executeTransfer(ctx context.Context, tx *sql.Tx, fromID, toID uuid.UUID, amount domain.Money) (*domain.TransferRecord, error) {
	locked, err := e.lockAccountsInOrder(ctx, tx, fromID, toID)
	if err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", err)
	}

	sender := locked[fromID]
	if sender.Balance.LessThan(amount) {
		return nil, fmt.Errorf("executeTransfer: balance %s below %s: %w", sender.Balance, amount, domain.ErrInsufficientFunds)
	}

	rec := &domain.TransferRecord{
		ID:         uuid.New(),
		FromUserID: fromID,
		ToUserID:   toID,
		Amount:     amount,
		CreatedAt:  e.now(),
	}
	if err := e.transfers.Create(ctx, tx, rec); err != nil {
		return nil, fmt.Errorf("executeTransfer: record: %w", err)
	}

	if _, err := e.applyCashMovement(ctx, tx, fromID, domain.EntryKindTransferOut, amount.Neg(), &rec.ID); err != nil {
		return nil, fmt.Errorf("executeTransfer: debit: %w", err)
	}
	if _, err := e.applyCashMovement(ctx, tx, toID, domain.EntryKindTransferIn, amount, &rec.ID); err != nil {
		return nil, fmt.Errorf("executeTransfer: credit: %w", err)
	}
	return rec, nil
}

func (e *Engine) Transfers(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.TransferRecord, int, error) {
	recs, total, err := e.transfers.ListForUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("Transfers: %w", err)
	}
	return recs, total, nil
}
