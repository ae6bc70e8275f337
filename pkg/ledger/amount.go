package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	amountScale       int32 = 2
	minorUnitExponent int32 = 2
)

// Amount is a non-negative fixed-point currency value with two decimal places.
type Amount struct {
	value decimal.Decimal
}

// PositiveAmount is an Amount that is strictly greater than zero.
type PositiveAmount struct {
	value decimal.Decimal
}

// NewAmount validates a non-negative amount.
func NewAmount(raw decimal.Decimal) (Amount, error) {
	if raw.IsNegative() {
		return Amount{}, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	if !raw.Equal(raw.Round(amountScale)) {
		return Amount{}, fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, amountScale)
	}
	return Amount{value: raw.Round(amountScale)}, nil
}

// ParseAmount parses a decimal string into an Amount.
func ParseAmount(raw string) (Amount, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q is not a decimal", ErrInvalidAmount, raw)
	}
	return NewAmount(parsed)
}

// Decimal returns the underlying decimal value.
func (amount Amount) Decimal() decimal.Decimal {
	return amount.value
}

// String renders the amount with two decimal places.
func (amount Amount) String() string {
	return amount.value.StringFixed(amountScale)
}

// MinorUnits converts the amount to the smallest currency unit (kobo, cents).
func (amount Amount) MinorUnits() int64 {
	return amount.value.Shift(minorUnitExponent).IntPart()
}

// IsZero reports whether the amount is zero.
func (amount Amount) IsZero() bool {
	return amount.value.IsZero()
}

// Add returns the sum of two amounts.
func (amount Amount) Add(other Amount) Amount {
	return Amount{value: amount.value.Add(other.value)}
}

// Sub subtracts other and fails when the result would be negative.
func (amount Amount) Sub(other Amount) (Amount, error) {
	return NewAmount(amount.value.Sub(other.value))
}

// LessThan reports whether amount < other.
func (amount Amount) LessThan(other Amount) bool {
	return amount.value.LessThan(other.value)
}

// Equal reports whether both amounts hold the same value.
func (amount Amount) Equal(other Amount) bool {
	return amount.value.Equal(other.value)
}

// NewPositiveAmount validates a strictly positive amount.
func NewPositiveAmount(raw decimal.Decimal) (PositiveAmount, error) {
	amount, err := NewAmount(raw)
	if err != nil {
		return PositiveAmount{}, err
	}
	if amount.IsZero() {
		return PositiveAmount{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return PositiveAmount{value: amount.value}, nil
}

// ParsePositiveAmount parses a decimal string into a PositiveAmount.
func ParsePositiveAmount(raw string) (PositiveAmount, error) {
	amount, err := ParseAmount(raw)
	if err != nil {
		return PositiveAmount{}, err
	}
	return NewPositiveAmount(amount.value)
}

// Decimal returns the underlying decimal value.
func (amount PositiveAmount) Decimal() decimal.Decimal {
	return amount.value
}

// String renders the amount with two decimal places.
func (amount PositiveAmount) String() string {
	return amount.value.StringFixed(amountScale)
}

// MinorUnits converts the amount to the smallest currency unit.
func (amount PositiveAmount) MinorUnits() int64 {
	return amount.ToAmount().MinorUnits()
}

// IsZero reports whether the amount is unset.
func (amount PositiveAmount) IsZero() bool {
	return amount.value.IsZero()
}

// ToAmount widens the value to Amount.
func (amount PositiveAmount) ToAmount() Amount {
	return Amount{value: amount.value}
}

// SumPositiveAmounts totals a list of positive amounts.
func SumPositiveAmounts(amounts ...PositiveAmount) Amount {
	total := Amount{}
	for _, amount := range amounts {
		total = total.Add(amount.ToAmount())
	}
	return total
}
