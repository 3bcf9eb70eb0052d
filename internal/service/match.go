package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pkordes/carrymatch/internal/domain"
	"github.com/pkordes/carrymatch/internal/repo"
)

// MatchService drives the two-sided acceptance handshake and serves match listings.
type MatchService struct {
	tx       repo.Transactor
	matches  repo.MatchRepo
	notifier Notifier
	logger   *slog.Logger
}

// NewMatchService constructs a MatchService. Transitions run through tx;
// reads go straight to matches.
func NewMatchService(tx repo.Transactor, matches repo.MatchRepo, notifier Notifier, logger *slog.Logger) *MatchService {
	return &MatchService{tx: tx, matches: matches, notifier: notifier, logger: loggerOrDefault(logger)}
}

// UpdateStatus applies actor's accept or reject to a match.
//
// The match row is locked first, then the trip row if capacity moves, all in
// one transaction: either the status, agreed weight and trip capacity all
// change or none do. The counterparty is notified after commit.
func (s *MatchService) UpdateStatus(ctx context.Context, matchID, actor uuid.UUID, action domain.Action) (domain.MatchDetail, error) {
	var (
		result    domain.MatchDetail
		recipient uuid.UUID
	)

	err := s.tx.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		m, err := r.Matches.GetForUpdate(ctx, matchID)
		if err != nil {
			return err
		}
		d, err := r.Matches.GetDetail(ctx, matchID)
		if err != nil {
			return err
		}
		d.Match = m

		role, err := domain.RoleOf(actor, d.Trip, d.Request)
		if err != nil {
			return err
		}
		step, err := domain.NextStep(m.Status, role, action)
		if err != nil {
			return err
		}

		ledger := NewLedger(r.Trips)
		switch {
		case step.Deduct:
			trip, err := ledger.Deduct(ctx, d.Trip.ID, d.Request.WeightKg)
			if err != nil {
				return err
			}
			agreed := d.Request.WeightKg
			m.AgreedWeightKg = &agreed
			d.Trip = trip
		case step.Refund:
			trip, err := ledger.Refund(ctx, d.Trip.ID, m.RefundAmount(d.Request))
			if err != nil {
				return err
			}
			d.Trip = trip
		}

		m.Status = step.To
		updated, err := r.Matches.Update(ctx, m)
		if err != nil {
			return err
		}
		d.Match = updated

		result = d
		recipient = domain.Counterparty(role, d.Trip, d.Request)
		return nil
	})
	if err != nil {
		return domain.MatchDetail{}, fmt.Errorf("service.MatchService.UpdateStatus: %w", err)
	}

	title, msg := "Match Update", "The status of your match has changed."
	if result.Status == domain.MatchRejected {
		title, msg = "Match Declined", "The other party declined."
	}
	s.notify(ctx, recipient, title, msg, result.ID)

	return result, nil
}

// Complete marks an accepted match delivered and fulfils its item request.
// Only the carrier may complete a match.
func (s *MatchService) Complete(ctx context.Context, matchID, actor uuid.UUID) (domain.MatchDetail, error) {
	var result domain.MatchDetail

	err := s.tx.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		m, err := r.Matches.GetForUpdate(ctx, matchID)
		if err != nil {
			return err
		}
		d, err := r.Matches.GetDetail(ctx, matchID)
		if err != nil {
			return err
		}

		role, err := domain.RoleOf(actor, d.Trip, d.Request)
		if err != nil {
			return err
		}
		if err := domain.CanComplete(m.Status, role); err != nil {
			return err
		}

		m.Status = domain.MatchCompleted
		updated, err := r.Matches.Update(ctx, m)
		if err != nil {
			return err
		}
		if err := r.Requests.SetStatus(ctx, d.Request.ID, domain.RequestFulfilled); err != nil {
			return err
		}

		d.Match = updated
		d.Request.Status = domain.RequestFulfilled
		result = d
		return nil
	})
	if err != nil {
		return domain.MatchDetail{}, fmt.Errorf("service.MatchService.Complete: %w", err)
	}

	s.notify(ctx, result.Request.RequesterID, "Delivery Complete",
		fmt.Sprintf("Your %s has been marked as delivered.", result.Request.ItemName), result.ID)
	return result, nil
}

// Get returns a match visible to viewer.
// Returns domain.ErrUnauthorized if the viewer is neither party.
func (s *MatchService) Get(ctx context.Context, matchID, viewer uuid.UUID) (domain.MatchDetail, error) {
	d, err := s.matches.GetDetail(ctx, matchID)
	if err != nil {
		return domain.MatchDetail{}, fmt.Errorf("service.MatchService.Get: %w", err)
	}
	if _, err := domain.RoleOf(viewer, d.Trip, d.Request); err != nil {
		return domain.MatchDetail{}, fmt.Errorf("service.MatchService.Get: %w", err)
	}
	return d, nil
}

// List returns one page of the viewer's matches, newest first.
// Pending matches that no longer fit their trip are left out.
func (s *MatchService) List(ctx context.Context, f domain.MatchFilter) (domain.Page[domain.MatchDetail], error) {
	if f.Viewer == uuid.Nil {
		return domain.Page[domain.MatchDetail]{}, fmt.Errorf("service.MatchService.List: %w: viewer required", domain.ErrValidation)
	}
	data, total, err := s.matches.ListForUser(ctx, f)
	if err != nil {
		return domain.Page[domain.MatchDetail]{}, fmt.Errorf("service.MatchService.List: %w", err)
	}
	return domain.NewPage(data, total, f.Page), nil
}

// CountPending counts the viewer's visible pending matches.
func (s *MatchService) CountPending(ctx context.Context, viewer uuid.UUID) (int64, error) {
	n, err := s.matches.CountPendingForUser(ctx, viewer)
	if err != nil {
		return 0, fmt.Errorf("service.MatchService.CountPending: %w", err)
	}
	return n, nil
}

func (s *MatchService) notify(ctx context.Context, to uuid.UUID, title, msg string, matchID uuid.UUID) {
	// The transition is already committed; a lost notification is only logged.
	// A client hanging up after the commit must not cancel the notification.
	ctx = context.WithoutCancel(ctx)
	if err := s.notifier.Notify(ctx, to, title, msg, domain.CategoryMatchUpdate, &matchID); err != nil {
		s.logger.WarnContext(ctx, "notify match update", "match_id", matchID, "user_id", to, "error", err)
	}
}
