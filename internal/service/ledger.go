package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pkordes/carrymatch/internal/domain"
	"github.com/pkordes/carrymatch/internal/repo"
)

// Ledger commits and releases a trip's luggage capacity.
//
// Both operations lock the trip row for the read-check-write, so the TripRepo
// must be bound to a transaction; the lock is held until that transaction
// ends, which serializes competing deductions on the same trip.
type Ledger struct {
	trips repo.TripRepo
}

// NewLedger constructs a Ledger over a transaction-bound TripRepo.
func NewLedger(trips repo.TripRepo) Ledger {
	return Ledger{trips: trips}
}

// Deduct removes amount from the trip's available capacity.
// Returns domain.ErrInsufficientCapacity, leaving the trip unchanged, when
// amount exceeds what is left.
func (l Ledger) Deduct(ctx context.Context, tripID uuid.UUID, amount decimal.Decimal) (domain.Trip, error) {
	trip, err := l.trips.GetForUpdate(ctx, tripID)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.Ledger.Deduct: %w", err)
	}

	next, err := domain.DeductCapacity(trip.AvailableCapacityKg, amount)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.Ledger.Deduct: %w", err)
	}

	updated, err := l.trips.SetCapacity(ctx, tripID, next)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.Ledger.Deduct: %w", err)
	}
	return updated, nil
}

// Refund returns amount to the trip's available capacity.
func (l Ledger) Refund(ctx context.Context, tripID uuid.UUID, amount decimal.Decimal) (domain.Trip, error) {
	trip, err := l.trips.GetForUpdate(ctx, tripID)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.Ledger.Refund: %w", err)
	}

	next, err := domain.RefundCapacity(trip.AvailableCapacityKg, amount)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.Ledger.Refund: %w", err)
	}

	updated, err := l.trips.SetCapacity(ctx, tripID, next)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.Ledger.Refund: %w", err)
	}
	return updated, nil
}
