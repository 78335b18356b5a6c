package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money pairs an amount with its ISO 4217 currency code. Amounts travel as
// strings on the wire, which decimal handles natively.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney builds a Money value from a decimal string such as "100" or
// "10.50".
func NewMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("money: invalid amount %q: %w", amount, err)
	}
	return Money{Amount: d, Currency: currency}, nil
}

// Add returns the sum of two Money values. Both operands must share a
// currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("money: currency mismatch %s vs %s", m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// IsZero reports whether the Money value is unset.
func (m Money) IsZero() bool {
	return m.Currency == "" && m.Amount.IsZero()
}

func (m Money) String() string {
	return m.Amount.String() + " " + m.Currency
}
