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

// BuyPosition debits quantity*price and records an acquired lot. It returns
// the balance after the debit.
func (e *Engine) BuyPosition(ctx context.Context, req PositionRequest) (domain.Money, error) {
	req, err := normalizePosition(req)
	if err != nil {
		return domain.Zero, fmt.Errorf("BuyPosition: %w", err)
	}
	cost := req.PricePerUnit.MulQuantity(req.Quantity)
	if err := e.checkLimit(cost); err != nil {
		return domain.Zero, fmt.Errorf("BuyPosition: %w", err)
	}

	var balance domain.Money
	err = e.runInTx(ctx, "BuyPosition", func(tx *sql.Tx) error {
		acct, err := e.lockAccount(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if acct.Balance.LessThan(cost) {
			return fmt.Errorf("balance %s below cost %s: %w", acct.Balance, cost, domain.ErrInsufficientFunds)
		}
		acct, err = e.accounts.AdjustBalance(ctx, tx, req.UserID, cost.Neg())
		if err != nil {
			return err
		}
		if err := e.appendLot(ctx, tx, req.UserID, req.Symbol, req.Quantity, req.PricePerUnit); err != nil {
			return err
		}
		balance = acct.Balance
		return nil
	})
	if err != nil {
		return domain.Zero, err
	}

	logging.FromContext(ctx).Info("buy committed",
		"user_id", req.UserID,
		"symbol", req.Symbol,
		"quantity", req.Quantity,
		"price", req.PricePerUnit,
		"balance", balance,
	)
	return balance, nil
}

// SellPosition credits quantity*price and records a disposed lot. The user
// must hold at least quantity across all prior lots of the symbol.
func (e *Engine) SellPosition(ctx context.Context, req PositionRequest) (domain.Money, error) {
	req, err := normalizePosition(req)
	if err != nil {
		return domain.Zero, fmt.Errorf("SellPosition: %w", err)
	}
	proceeds := req.PricePerUnit.MulQuantity(req.Quantity)

	var balance domain.Money
	err = e.runInTx(ctx, "SellPosition", func(tx *sql.Tx) error {
		if _, err := e.lockAccount(ctx, tx, req.UserID); err != nil {
			return err
		}
		held, err := e.positions.NetHoldings(ctx, tx, req.UserID, req.Symbol)
		if err != nil {
			return err
		}
		if held < req.Quantity {
			return fmt.Errorf("holding %d %s, selling %d: %w", held, req.Symbol, req.Quantity, domain.ErrInsufficientHoldings)
		}
		acct, err := e.accounts.AdjustBalance(ctx, tx, req.UserID, proceeds)
		if err != nil {
			return err
		}
		if err := e.appendLot(ctx, tx, req.UserID, req.Symbol, -req.Quantity, req.PricePerUnit); err != nil {
			return err
		}
		balance = acct.Balance
		return nil
	})
	if err != nil {
		return domain.Zero, err
	}

	logging.FromContext(ctx).Info("sell committed",
		"user_id", req.UserID,
		"symbol", req.Symbol,
		"quantity", req.Quantity,
		"price", req.PricePerUnit,
		"balance", balance,
	)
	return balance, nil
}

func (e *Engine) appendLot(ctx context.Context, tx *sql.Tx, userID uuid.UUID, symbol string, quantity int64, price domain.Money) error {
	// The database stamps created_at; the id only needs a nearby time.
	lot := &domain.PositionLot{
		ID:       id.New(e.now()),
		UserID:   userID,
		Symbol:   symbol,
		Quantity: quantity,
		Price:    price,
	}
	if err := e.positions.AppendLot(ctx, tx, lot); err != nil {
		return fmt.Errorf("appendLot: %w", err)
	}
	return nil
}

func (e *Engine) Holdings(ctx context.Context, userID uuid.UUID) ([]domain.Holding, error) {
	if _, err := e.accounts.GetByUserID(ctx, userID); err != nil {
		return nil, fmt.Errorf("Holdings: %w", err)
	}
	holdings, err := e.positions.Holdings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Holdings: %w", err)
	}
	return holdings, nil
}

// Lots lists a symbol's lots in the order holdings are computed from.
func (e *Engine) Lots(ctx context.Context, userID uuid.UUID, symbol string) ([]domain.PositionLot, error) {
	symbol, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return nil, fmt.Errorf("Lots: %w", err)
	}
	lots, err := e.positions.Lots(ctx, userID, symbol)
	if err != nil {
		return nil, fmt.Errorf("Lots: %w", err)
	}
	return lots, nil
}
