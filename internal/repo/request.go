package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/pkordes/carrymatch/internal/domain"
)

// RequestRepo defines the persistence operations for ItemRequests.
type RequestRepo interface {
	// Create inserts a new item request and returns the persisted record.
	Create(ctx context.Context, req domain.ItemRequest) (domain.ItemRequest, error)

	// GetByID retrieves a single request by id.
	// Returns domain.ErrNotFound if no request with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.ItemRequest, error)

	// SetStatus changes the request's status.
	// Returns domain.ErrNotFound if no request with that ID exists.
	SetStatus(ctx context.Context, id uuid.UUID, status domain.RequestStatus) error

	// ExistsActiveDuplicate reports whether the requester already has an
	// active request for the same item name (case and whitespace insensitive)
	// and delivery date.
	ExistsActiveDuplicate(ctx context.Context, req domain.ItemRequest) (bool, error)

	// ListByRequester returns one page of the requester's requests, newest
	// first, plus the total count.
	ListByRequester(ctx context.Context, requesterID uuid.UUID, p domain.PaginationParams) ([]domain.ItemRequest, int64, error)

	// CountActiveByRequester counts the requester's active requests.
	CountActiveByRequester(ctx context.Context, requesterID uuid.UUID) (int64, error)

	// FindCandidatesForTrip returns active requests on the trip's country pair
	// wanted on or after its departure that fit its available capacity,
	// excluding the carrier's own requests. Oldest requests come first.
	FindCandidatesForTrip(ctx context.Context, trip domain.Trip) ([]domain.ItemRequest, error)
}

// pgRequestRepo is the Postgres implementation of RequestRepo.
type pgRequestRepo struct {
	db db
}

// NewRequestRepo constructs a RequestRepo backed by the provided db connection.
func NewRequestRepo(db db) RequestRepo {
	return &pgRequestRepo{db: db}
}

// requestColumns is the select list understood by scanRequest. The table must be aliased r.
const requestColumns = `
	r.id, r.requester_id, r.item_name, r.quantity, r.weight_kg::text,
	r.from_country, r.from_state, r.from_city,
	r.to_country, r.to_state, r.to_city,
	r.desired_delivery_date, r.notes, r.status, r.created_at,
	(SELECT count(*) FROM matches mc WHERE mc.item_request_id = r.id)`

func (r *pgRequestRepo) Create(ctx context.Context, req domain.ItemRequest) (domain.ItemRequest, error) {
	const q = `
		WITH r AS (
			INSERT INTO item_requests (
				requester_id, item_name, quantity, weight_kg,
				from_country, from_state, from_city,
				to_country, to_state, to_city,
				desired_delivery_date, notes, status
			) VALUES (
				@requester_id, @item_name, @quantity, @weight::numeric,
				@from_country, @from_state, @from_city,
				@to_country, @to_state, @to_city,
				@desired, @notes, @status
			)
			RETURNING *
		)
		SELECT ` + requestColumns + ` FROM r`

	args := pgx.NamedArgs{
		"requester_id": req.RequesterID,
		"item_name":    req.ItemName,
		"quantity":     req.Quantity,
		"weight":       req.WeightKg.String(),
		"from_country": req.Origin.Country,
		"from_state":   req.Origin.State,
		"from_city":    req.Origin.City,
		"to_country":   req.Destination.Country,
		"to_state":     req.Destination.State,
		"to_city":      req.Destination.City,
		"desired":      req.DesiredDeliveryDate,
		"notes":        req.Notes,
		"status":       string(req.Status),
	}

	result, err := scanRequest(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.ItemRequest{}, fmt.Errorf("repo.RequestRepo.Create: %w", err)
	}
	return result, nil
}

func (r *pgRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.ItemRequest, error) {
	q := `SELECT ` + requestColumns + ` FROM item_requests r WHERE r.id = @id`

	result, err := scanRequest(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.ItemRequest{}, fmt.Errorf("repo.RequestRepo.GetByID: %w", err)
	}
	return result, nil
}

func (r *pgRequestRepo) SetStatus(ctx context.Context, id uuid.UUID, status domain.RequestStatus) error {
	const q = `UPDATE item_requests SET status = @status WHERE id = @id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "status": string(status)})
	if err != nil {
		return fmt.Errorf("repo.RequestRepo.SetStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.RequestRepo.SetStatus: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *pgRequestRepo) ExistsActiveDuplicate(ctx context.Context, req domain.ItemRequest) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM item_requests
			WHERE requester_id = @requester_id
			  AND LOWER(TRIM(item_name)) = LOWER(TRIM(@item_name))
			  AND desired_delivery_date = @desired
			  AND status = 'active'
		)`

	args := pgx.NamedArgs{
		"requester_id": req.RequesterID,
		"item_name":    req.ItemName,
		"desired":      req.DesiredDeliveryDate,
	}
	var exists bool
	if err := r.db.QueryRow(ctx, q, args).Scan(&exists); err != nil {
		return false, fmt.Errorf("repo.RequestRepo.ExistsActiveDuplicate: %w", err)
	}
	return exists, nil
}

func (r *pgRequestRepo) ListByRequester(ctx context.Context, requesterID uuid.UUID, p domain.PaginationParams) ([]domain.ItemRequest, int64, error) {
	q := `
		SELECT ` + requestColumns + `
		FROM item_requests r
		WHERE r.requester_id = @requester_id
		ORDER BY r.created_at DESC
		LIMIT @limit OFFSET @offset`
	const countQ = `SELECT count(*) FROM item_requests WHERE requester_id = @requester_id`

	args := pgx.NamedArgs{"requester_id": requesterID, "limit": p.Limit, "offset": p.Offset()}

	var total int64
	if err := r.db.QueryRow(ctx, countQ, args).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.RequestRepo.ListByRequester: count: %w", err)
	}
	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.RequestRepo.ListByRequester: %w", err)
	}
	reqs, err := collectRequests(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.RequestRepo.ListByRequester: %w", err)
	}
	return reqs, total, nil
}

func (r *pgRequestRepo) CountActiveByRequester(ctx context.Context, requesterID uuid.UUID) (int64, error) {
	const q = `SELECT count(*) FROM item_requests WHERE requester_id = @requester_id AND status = 'active'`

	var n int64
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"requester_id": requesterID}).Scan(&n); err != nil {
		return 0, fmt.Errorf("repo.RequestRepo.CountActiveByRequester: %w", err)
	}
	return n, nil
}

func (r *pgRequestRepo) FindCandidatesForTrip(ctx context.Context, trip domain.Trip) ([]domain.ItemRequest, error) {
	q := `
		SELECT ` + requestColumns + `
		FROM item_requests r
		WHERE r.from_country = @from_country
		  AND r.to_country = @to_country
		  AND r.status = 'active'
		  AND r.desired_delivery_date >= @departure
		  AND r.weight_kg <= @capacity::numeric
		  AND r.requester_id <> @carrier_id
		ORDER BY r.created_at ASC`

	args := pgx.NamedArgs{
		"from_country": trip.Origin.Country,
		"to_country":   trip.Destination.Country,
		"departure":    trip.DepartureDate,
		"capacity":     trip.AvailableCapacityKg.String(),
		"carrier_id":   trip.CarrierID,
	}

	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, fmt.Errorf("repo.RequestRepo.FindCandidatesForTrip: %w", err)
	}
	reqs, err := collectRequests(rows)
	if err != nil {
		return nil, fmt.Errorf("repo.RequestRepo.FindCandidatesForTrip: %w", err)
	}
	return reqs, nil
}

func collectRequests(rows pgx.Rows) ([]domain.ItemRequest, error) {
	defer rows.Close()

	var reqs []domain.ItemRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return reqs, nil
}

// requestScan holds the scan destinations for requestColumns.
type requestScan struct {
	r         domain.ItemRequest
	id        pgtype.UUID
	requester pgtype.UUID
	weight    string
	desired   pgtype.Date
	status    string
	matches   int64
}

func (rs *requestScan) dest() []any {
	return []any{
		&rs.id, &rs.requester, &rs.r.ItemName, &rs.r.Quantity, &rs.weight,
		&rs.r.Origin.Country, &rs.r.Origin.State, &rs.r.Origin.City,
		&rs.r.Destination.Country, &rs.r.Destination.State, &rs.r.Destination.City,
		&rs.desired, &rs.r.Notes, &rs.status, &rs.r.CreatedAt,
		&rs.matches,
	}
}

func (rs *requestScan) request() (domain.ItemRequest, error) {
	req := rs.r
	req.ID = uuid.UUID(rs.id.Bytes)
	req.RequesterID = uuid.UUID(rs.requester.Bytes)
	weight, err := decimal.NewFromString(rs.weight)
	if err != nil {
		return domain.ItemRequest{}, fmt.Errorf("parse weight: %w", err)
	}
	req.WeightKg = weight
	req.DesiredDeliveryDate = rs.desired.Time
	req.Status = domain.RequestStatus(rs.status)
	req.MatchCount = int(rs.matches)
	return req, nil
}

// scanRequest maps a single requestColumns row into a domain.ItemRequest.
func scanRequest(s scanner) (domain.ItemRequest, error) {
	var rs requestScan
	if err := s.Scan(rs.dest()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ItemRequest{}, domain.ErrNotFound
		}
		return domain.ItemRequest{}, err
	}
	return rs.request()
}
