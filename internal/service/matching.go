package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/carrymatch/internal/domain"
	"github.com/pkordes/carrymatch/internal/queue"
)

// TripFinder is the read-only view of trips the matching engine needs.
type TripFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error)
	FindCandidatesForRequest(ctx context.Context, req domain.ItemRequest, today time.Time) ([]domain.Trip, error)
}

// RequestFinder is the read-only view of item requests the matching engine needs.
type RequestFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.ItemRequest, error)
	FindCandidatesForTrip(ctx context.Context, trip domain.Trip) ([]domain.ItemRequest, error)
}

// MatchCreator persists a pending match for a pair unless one already exists.
type MatchCreator interface {
	CreateIfAbsent(ctx context.Context, tripID, requestID uuid.UUID) (domain.Match, bool, error)
}

// MatchingEngine pairs new trips with open requests and new requests with
// open trips. It only reads trips and requests and only ever creates pending
// matches; capacity is untouched until a carrier accepts.
type MatchingEngine struct {
	trips    TripFinder
	requests RequestFinder
	matches  MatchCreator
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewMatchingEngine constructs a MatchingEngine. A nil logger uses slog.Default.
func NewMatchingEngine(trips TripFinder, requests RequestFinder, matches MatchCreator, notifier Notifier, logger *slog.Logger) *MatchingEngine {
	return &MatchingEngine{
		trips:    trips,
		requests: requests,
		matches:  matches,
		notifier: notifier,
		logger:   loggerOrDefault(logger),
		now:      time.Now,
	}
}

// WithClock replaces the engine's clock. Used by tests.
func (e *MatchingEngine) WithClock(now func() time.Time) *MatchingEngine {
	e.now = now
	return e
}

// HandleJob is the queue.Handler for matching jobs.
func (e *MatchingEngine) HandleJob(ctx context.Context, job queue.Job) error {
	switch job.Kind {
	case queue.KindTripCreated:
		trip, err := e.trips.GetByID(ctx, job.TargetID)
		if err != nil {
			return fmt.Errorf("service.MatchingEngine.HandleJob: %w", err)
		}
		_, err = e.OnNewTrip(ctx, trip)
		return err
	case queue.KindRequestCreated:
		req, err := e.requests.GetByID(ctx, job.TargetID)
		if err != nil {
			return fmt.Errorf("service.MatchingEngine.HandleJob: %w", err)
		}
		_, err = e.OnNewRequest(ctx, req)
		return err
	}
	return fmt.Errorf("service.MatchingEngine.HandleJob: unknown job kind %q", job.Kind)
}

// OnNewRequest matches req against every active trip on its route that
// departs between today and the desired delivery date and still has room,
// earliest departure first. It returns how many matches were created.
//
// Only the candidate query can fail the call. A failure on one candidate is
// logged and the remaining candidates are still processed.
func (e *MatchingEngine) OnNewRequest(ctx context.Context, req domain.ItemRequest) (int, error) {
	if req.Status != domain.RequestActive {
		return 0, nil
	}

	trips, err := e.trips.FindCandidatesForRequest(ctx, req, today(e.now()))
	if err != nil {
		return 0, fmt.Errorf("service.MatchingEngine.OnNewRequest: %w", err)
	}

	created := 0
	for _, trip := range trips {
		_, ok, err := e.CreateMatch(ctx, trip, req)
		if err != nil {
			e.logger.ErrorContext(ctx, "create match for new request",
				"request_id", req.ID, "trip_id", trip.ID, "error", err)
			continue
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// OnNewTrip matches trip against every active request on its route whose
// delivery date is on or after departure and whose weight fits, oldest
// request first. Failure handling is the same as OnNewRequest.
func (e *MatchingEngine) OnNewTrip(ctx context.Context, trip domain.Trip) (int, error) {
	if trip.Status != domain.TripActive {
		return 0, nil
	}

	reqs, err := e.requests.FindCandidatesForTrip(ctx, trip)
	if err != nil {
		return 0, fmt.Errorf("service.MatchingEngine.OnNewTrip: %w", err)
	}

	created := 0
	for _, req := range reqs {
		_, ok, err := e.CreateMatch(ctx, trip, req)
		if err != nil {
			e.logger.ErrorContext(ctx, "create match for new trip",
				"trip_id", trip.ID, "request_id", req.ID, "error", err)
			continue
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// CreateMatch records a pending match between trip and req.
//
// Self-pairs and requests heavier than the trip's current capacity are
// skipped without error and yield the zero Match. An existing match for the
// pair is returned as is with created false. Both parties are notified of a
// newly created match.
//
// The capacity check runs before the pair lookup, so a pair whose match
// already exists yields the zero Match once the trip can no longer carry
// the request.
func (e *MatchingEngine) CreateMatch(ctx context.Context, trip domain.Trip, req domain.ItemRequest) (m domain.Match, created bool, err error) {
	if trip.CarrierID == req.RequesterID {
		return domain.Match{}, false, nil
	}
	if !trip.Fits(req.WeightKg) {
		return domain.Match{}, false, nil
	}

	m, created, err = e.matches.CreateIfAbsent(ctx, trip.ID, req.ID)
	if err != nil {
		return domain.Match{}, false, fmt.Errorf("service.MatchingEngine.CreateMatch: %w", err)
	}
	if created {
		e.announce(ctx, m, trip, req)
	}
	return m, created, nil
}

func (e *MatchingEngine) announce(ctx context.Context, m domain.Match, trip domain.Trip, req domain.ItemRequest) {
	notes := []struct {
		to  uuid.UUID
		msg string
	}{
		{trip.CarrierID, fmt.Sprintf("A request for %s (%s kg) fits your trip to %s.", req.ItemName, req.WeightKg, trip.Destination.City)},
		{req.RequesterID, fmt.Sprintf("A traveler to %s can carry your %s.", trip.Destination.City, req.ItemName)},
	}
	for _, n := range notes {
		if err := e.notifier.Notify(ctx, n.to, "New Match Found", n.msg, domain.CategoryNewTripMatch, &m.ID); err != nil {
			e.logger.WarnContext(ctx, "notify new match", "match_id", m.ID, "user_id", n.to, "error", err)
		}
	}
}
