package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pkordes/carrymatch/internal/domain"
	"github.com/pkordes/carrymatch/internal/queue"
	"github.com/pkordes/carrymatch/internal/repo"
)

var minRequestWeight = decimal.RequireFromString("0.01")

// RequestService implements business logic for ItemRequest operations.
type RequestService struct {
	repo   repo.RequestRepo
	jobs   Enqueuer
	logger *slog.Logger
}

// NewRequestService constructs a RequestService. New requests are handed to jobs for matching.
func NewRequestService(r repo.RequestRepo, jobs Enqueuer, logger *slog.Logger) *RequestService {
	return &RequestService{repo: r, jobs: jobs, logger: loggerOrDefault(logger)}
}

// Create validates and persists a new active request for requesterID, then
// queues it for matching. A queueing failure is logged; the request is still
// created.
func (s *RequestService) Create(ctx context.Context, requesterID uuid.UUID, req domain.ItemRequest) (domain.ItemRequest, error) {
	req.RequesterID = requesterID
	req.Status = domain.RequestActive
	if err := validateRequest(req); err != nil {
		return domain.ItemRequest{}, fmt.Errorf("service.RequestService.Create: %w", err)
	}

	dup, err := s.repo.ExistsActiveDuplicate(ctx, req)
	if err != nil {
		return domain.ItemRequest{}, fmt.Errorf("service.RequestService.Create: %w", err)
	}
	if dup {
		return domain.ItemRequest{}, fmt.Errorf("service.RequestService.Create: %w: an active request for this item and date already exists", domain.ErrConflict)
	}

	created, err := s.repo.Create(ctx, req)
	if err != nil {
		return domain.ItemRequest{}, fmt.Errorf("service.RequestService.Create: %w", err)
	}

	job := queue.Job{Kind: queue.KindRequestCreated, TargetID: created.ID}
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "queue request for matching", "request_id", created.ID, "error", err)
	}
	return created, nil
}

func validateRequest(req domain.ItemRequest) error {
	if req.RequesterID == uuid.Nil {
		return fmt.Errorf("%w: requester is required", domain.ErrValidation)
	}
	if blank(req.ItemName) {
		return fmt.Errorf("%w: item_name is required", domain.ErrValidation)
	}
	if req.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", domain.ErrValidation)
	}
	if req.WeightKg.LessThan(minRequestWeight) {
		return fmt.Errorf("%w: weight_kg must be at least %s", domain.ErrValidation, minRequestWeight)
	}
	if !req.WeightKg.Equal(req.WeightKg.Truncate(2)) {
		return fmt.Errorf("%w: weight_kg allows at most 2 decimal places", domain.ErrValidation)
	}
	if !validLocation(req.Origin) || !validLocation(req.Destination) {
		return fmt.Errorf("%w: origin and destination need country, state and city", domain.ErrValidation)
	}
	if req.DesiredDeliveryDate.IsZero() {
		return fmt.Errorf("%w: desired_delivery_date is required", domain.ErrValidation)
	}
	return nil
}

// GetByID returns a single request by ID.
func (s *RequestService) GetByID(ctx context.Context, id uuid.UUID) (domain.ItemRequest, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.ItemRequest{}, fmt.Errorf("service.RequestService.GetByID: %w", err)
	}
	return req, nil
}

// ListMine returns one page of the requester's requests, newest first.
func (s *RequestService) ListMine(ctx context.Context, requesterID uuid.UUID, p domain.PaginationParams) (domain.Page[domain.ItemRequest], error) {
	reqs, total, err := s.repo.ListByRequester(ctx, requesterID, p)
	if err != nil {
		return domain.Page[domain.ItemRequest]{}, fmt.Errorf("service.RequestService.ListMine: %w", err)
	}
	return domain.NewPage(reqs, total, p), nil
}

// CountActive counts the requester's active requests.
func (s *RequestService) CountActive(ctx context.Context, requesterID uuid.UUID) (int64, error) {
	n, err := s.repo.CountActiveByRequester(ctx, requesterID)
	if err != nil {
		return 0, fmt.Errorf("service.RequestService.CountActive: %w", err)
	}
	return n, nil
}
