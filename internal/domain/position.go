package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// PositionLot records one buy (positive quantity) or sell (negative quantity)
// of a symbol. Lots are never updated or deleted.
type PositionLot struct {
	ID        string
	Seq       int64
	UserID    uuid.UUID
	Symbol    string
	Quantity  int64
	Price     Money
	CreatedAt time.Time
}

func (l PositionLot) Side() Side {
	if l.Quantity < 0 {
		return SideSell
	}
	return SideBuy
}

// CashFlow is the balance effect of the lot: negative for buys, positive for sells.
func (l PositionLot) CashFlow() Money {
	return l.Price.MulQuantity(-l.Quantity)
}

// Holding is the net position in one symbol.
type Holding struct {
	Symbol   string
	Quantity int64
	// NetInvested is what was paid for buys minus what sells returned.
	NetInvested Money
	Lots        int
}

var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-=^]{0,15}$`)

// NormalizeSymbol trims and upper-cases a ticker and rejects anything that is not one.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolPattern.MatchString(s) {
		return "", fmt.Errorf("NormalizeSymbol: %q: %w", symbol, ErrInvalidSymbol)
	}
	return s, nil
}
