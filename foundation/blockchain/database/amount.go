package database

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountPlaces is the number of fractional digits an amount may carry.
const AmountPlaces = 8

// ErrInvalidAmount is returned when an amount is not positive or carries
// more precision than the ledger records.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts the text into an amount, rejecting values with more
// than AmountPlaces fractional digits.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidAmount, err)
	}

	if !HasValidPrecision(d) {
		return decimal.Zero, fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, AmountPlaces)
	}

	return d, nil
}

// HasValidPrecision reports whether the amount fits the ledger precision.
func HasValidPrecision(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(AmountPlaces))
}

// FormatAmount returns the canonical text of an amount.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountPlaces)
}
