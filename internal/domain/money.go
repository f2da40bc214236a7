package domain

import (
	"database/sql/driver"
	"fmt"
	"log/slog"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits every stored amount carries.
const MoneyScale = 2

// Money is a fixed-precision amount in the ledger currency. The zero value is 0.00.
type Money struct {
	d decimal.Decimal
}

var Zero = Money{}

// moneyLimit is the first magnitude a NUMERIC(20,2) column cannot hold.
var moneyLimit = decimal.New(1, 18)

func NewMoney(d decimal.Decimal) (Money, error) {
	if !d.Equal(d.Truncate(MoneyScale)) {
		return Money{}, fmt.Errorf("NewMoney: %s has more than %d decimal places: %w", d, MoneyScale, ErrInvalidAmount)
	}
	if d.Abs().GreaterThanOrEqual(moneyLimit) {
		return Money{}, fmt.Errorf("NewMoney: %s out of range: %w", d, ErrInvalidAmount)
	}
	return Money{d: d}, nil
}

func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("ParseMoney: %q: %w", s, ErrInvalidAmount)
	}
	m, err := NewMoney(d)
	if err != nil {
		return Money{}, fmt.Errorf("ParseMoney: %w", err)
	}
	return m, nil
}

// MustParseMoney is ParseMoney for literals known to be valid.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// MoneyFromCents builds an amount from its minor units.
func MoneyFromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -MoneyScale)}
}

func (m Money) Decimal() decimal.Decimal { return m.d }

func (m Money) Add(n Money) Money { return Money{d: m.d.Add(n.d)} }
func (m Money) Sub(n Money) Money { return Money{d: m.d.Sub(n.d)} }
func (m Money) Neg() Money        { return Money{d: m.d.Neg()} }

// MulQuantity multiplies a per-unit price by a whole number of units.
func (m Money) MulQuantity(q int64) Money { return Money{d: m.d.Mul(decimal.NewFromInt(q))} }

func (m Money) Cmp(n Money) int                 { return m.d.Cmp(n.d) }
func (m Money) Equal(n Money) bool              { return m.d.Equal(n.d) }
func (m Money) LessThan(n Money) bool           { return m.d.LessThan(n.d) }
func (m Money) GreaterThan(n Money) bool        { return m.d.GreaterThan(n.d) }
func (m Money) GreaterThanOrEqual(n Money) bool { return m.d.GreaterThanOrEqual(n.d) }
func (m Money) IsZero() bool                    { return m.d.IsZero() }
func (m Money) IsPositive() bool                { return m.d.IsPositive() }
func (m Money) IsNegative() bool                { return m.d.IsNegative() }
func (m Money) Cents() int64                    { return m.d.Shift(MoneyScale).IntPart() }
func (m Money) String() string                  { return m.d.StringFixed(MoneyScale) }
func (m Money) LogValue() slog.Value            { return slog.StringValue(m.String()) }

// Format renders the amount with the symbol and separators of an ISO 4217 currency,
// falling back to the plain decimal form for unknown codes.
func (m Money) Format(currency string) string {
	if money.GetCurrency(currency) == nil {
		return m.String() + " " + currency
	}
	return money.New(m.Cents(), currency).Display()
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("Money.UnmarshalJSON: %w", ErrInvalidAmount)
	}
	parsed, err := NewMoney(d)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Money) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText lets Money be used directly as an env or flag value.
func (m *Money) UnmarshalText(b []byte) error {
	parsed, err := ParseMoney(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m *Money) Scan(value any) error {
	var d decimal.Decimal
	if err := d.Scan(value); err != nil {
		return fmt.Errorf("Money.Scan: %w", err)
	}
	m.d = d
	return nil
}

func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}
