package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DeductCapacity returns available minus amount.
// Returns ErrInsufficientCapacity if amount exceeds available, and
// ErrValidation for a negative amount.
func DeductCapacity(available, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return available, fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	if amount.GreaterThan(available) {
		return available, fmt.Errorf("%w: need %s kg, %s kg available", ErrInsufficientCapacity, amount, available)
	}
	return available.Sub(amount), nil
}

// RefundCapacity returns available plus amount.
func RefundCapacity(available, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return available, fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	return available.Add(amount), nil
}
