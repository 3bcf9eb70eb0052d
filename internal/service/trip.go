package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pkordes/carrymatch/internal/domain"
	"github.com/pkordes/carrymatch/internal/queue"
	"github.com/pkordes/carrymatch/internal/repo"
)

var (
	minTripCapacity = decimal.RequireFromString("0.1")
	maxTripCapacity = decimal.RequireFromString("100")
)

// TripService implements business logic for Trip operations.
type TripService struct {
	repo   repo.TripRepo
	jobs   Enqueuer
	logger *slog.Logger
	now    func() time.Time
}

// NewTripService constructs a TripService. New trips are handed to jobs for matching.
func NewTripService(r repo.TripRepo, jobs Enqueuer, logger *slog.Logger) *TripService {
	return &TripService{repo: r, jobs: jobs, logger: loggerOrDefault(logger), now: time.Now}
}

// WithClock replaces the service's clock. Used by tests.
func (s *TripService) WithClock(now func() time.Time) *TripService {
	s.now = now
	return s
}

// Create validates and persists a new active trip for carrierID, then queues
// it for matching. A queueing failure is logged; the trip is still created.
func (s *TripService) Create(ctx context.Context, carrierID uuid.UUID, trip domain.Trip) (domain.Trip, error) {
	trip.CarrierID = carrierID
	trip.Status = domain.TripActive
	if err := s.validate(trip); err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Create: %w", err)
	}

	dup, err := s.repo.ExistsActiveDuplicate(ctx, trip)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Create: %w", err)
	}
	if dup {
		return domain.Trip{}, fmt.Errorf("service.TripService.Create: %w: an active trip on this route and date already exists", domain.ErrConflict)
	}

	created, err := s.repo.Create(ctx, trip)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Create: %w", err)
	}

	job := queue.Job{Kind: queue.KindTripCreated, TargetID: created.ID}
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "queue trip for matching", "trip_id", created.ID, "error", err)
	}
	return created, nil
}

func (s *TripService) validate(trip domain.Trip) error {
	if trip.CarrierID == uuid.Nil {
		return fmt.Errorf("%w: carrier is required", domain.ErrValidation)
	}
	if !validLocation(trip.Origin) || !validLocation(trip.Destination) {
		return fmt.Errorf("%w: origin and destination need country, state and city", domain.ErrValidation)
	}
	if trip.DepartureDate.IsZero() {
		return fmt.Errorf("%w: departure_date is required", domain.ErrValidation)
	}
	if trip.DepartureDate.Before(today(s.now())) {
		return fmt.Errorf("%w: departure_date must not be in the past", domain.ErrValidation)
	}
	if trip.ReturnDate != nil && trip.ReturnDate.Before(trip.DepartureDate) {
		return fmt.Errorf("%w: return_date must be on or after departure_date", domain.ErrValidation)
	}
	if trip.AvailableCapacityKg.LessThan(minTripCapacity) || trip.AvailableCapacityKg.GreaterThan(maxTripCapacity) {
		return fmt.Errorf("%w: available_capacity_kg must be between %s and %s", domain.ErrValidation, minTripCapacity, maxTripCapacity)
	}
	if !trip.AvailableCapacityKg.Equal(trip.AvailableCapacityKg.Truncate(2)) {
		return fmt.Errorf("%w: available_capacity_kg allows at most 2 decimal places", domain.ErrValidation)
	}
	return nil
}

// GetByID returns a single trip by ID.
func (s *TripService) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	trip, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.GetByID: %w", err)
	}
	return trip, nil
}

// ListMine returns one page of the carrier's trips, earliest departure first.
func (s *TripService) ListMine(ctx context.Context, carrierID uuid.UUID, p domain.PaginationParams) (domain.Page[domain.Trip], error) {
	trips, total, err := s.repo.ListByCarrier(ctx, carrierID, p)
	if err != nil {
		return domain.Page[domain.Trip]{}, fmt.Errorf("service.TripService.ListMine: %w", err)
	}
	return domain.NewPage(trips, total, p), nil
}

// ListActive returns one page of all active trips, newest first.
func (s *TripService) ListActive(ctx context.Context, p domain.PaginationParams) (domain.Page[domain.Trip], error) {
	trips, total, err := s.repo.ListActive(ctx, p)
	if err != nil {
		return domain.Page[domain.Trip]{}, fmt.Errorf("service.TripService.ListActive: %w", err)
	}
	return domain.NewPage(trips, total, p), nil
}

// CountActive counts the carrier's active trips.
func (s *TripService) CountActive(ctx context.Context, carrierID uuid.UUID) (int64, error) {
	n, err := s.repo.CountActiveByCarrier(ctx, carrierID)
	if err != nil {
		return 0, fmt.Errorf("service.TripService.CountActive: %w", err)
	}
	return n, nil
}
