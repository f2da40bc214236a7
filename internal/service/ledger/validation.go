package ledger

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
)

type TransferRequest struct {
	FromUserID uuid.UUID
	ToIBAN     string
	ToName     string
	Amount     domain.Money
}

type PositionRequest struct {
	UserID       uuid.UUID
	Symbol       string
	Quantity     int64
	PricePerUnit domain.Money
}

func validateAmount(amount domain.Money) error {
	if !amount.IsPositive() {
		return fmt.Errorf("validateAmount: %s: %w", amount, domain.ErrInvalidAmount)
	}
	return nil
}

// checkLimit applies TX_LIMIT to an outgoing amount. A zero limit disables it.
func (e *Engine) checkLimit(amount domain.Money) error {
	limit := e.config.TxLimit
	if limit.IsZero() || !amount.Decimal().GreaterThan(limit) {
		return nil
	}
	return fmt.Errorf("checkLimit: %s above %s: %w", amount, limit.StringFixed(domain.MoneyScale), domain.ErrLimitExceeded)
}

func (e *Engine) validateTransfer(req TransferRequest) error {
	if err := validateAmount(req.Amount); err != nil {
		return fmt.Errorf("validateTransfer: %w", err)
	}
	if domain.NormalizeIBAN(req.ToIBAN) == "" || strings.TrimSpace(req.ToName) == "" {
		return fmt.Errorf("validateTransfer: receiver iban and name are required: %w", domain.ErrReceiverNotFound)
	}
	if err := e.checkLimit(req.Amount); err != nil {
		return fmt.Errorf("validateTransfer: %w", err)
	}
	return nil
}

// normalizePosition checks the request and returns it with a canonical symbol.
func normalizePosition(req PositionRequest) (PositionRequest, error) {
	if req.Quantity <= 0 {
		return req, fmt.Errorf("normalizePosition: %d: %w", req.Quantity, domain.ErrInvalidQuantity)
	}
	if req.PricePerUnit.IsNegative() {
		return req, fmt.Errorf("normalizePosition: price %s: %w", req.PricePerUnit, domain.ErrInvalidAmount)
	}
	symbol, err := domain.NormalizeSymbol(req.Symbol)
	if err != nil {
		return req, fmt.Errorf("normalizePosition: %w", err)
	}
	req.Symbol = symbol
	return req, nil
}

func sortedIDs(ids []uuid.UUID) []uuid.UUID {
	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, func(a, b uuid.UUID) int {
		return strings.Compare(a.String(), b.String())
	})
	return slices.Compact(sorted)
}
