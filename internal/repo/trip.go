// Package repo contains all database access logic for the CarryMatch API.
// Each resource has its own file with an interface and a Postgres implementation.
// No business logic lives here, only SQL and type mapping.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/pkordes/carrymatch/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Accepting this interface instead of *pgxpool.Pool directly allows integration
// tests to pass a transaction that is rolled back after each test, giving free
// per-test isolation without any manual cleanup.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TripRepo defines the persistence operations for Trips.
// The service layer depends on this interface, not the concrete Postgres implementation,
// which allows the service to be unit-tested with a mock.
type TripRepo interface {
	// Create inserts a new trip and returns the persisted record (with DB-generated
	// id and created_at populated).
	Create(ctx context.Context, trip domain.Trip) (domain.Trip, error)

	// GetByID retrieves a single trip by its UUID primary key.
	// Returns domain.ErrNotFound if no trip with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error)

	// GetForUpdate is GetByID with a row lock held until the surrounding
	// transaction ends. Only meaningful when the repo is bound to a pgx.Tx.
	GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Trip, error)

	// SetCapacity overwrites available_capacity_kg and returns the updated trip.
	SetCapacity(ctx context.Context, id uuid.UUID, capacityKg decimal.Decimal) (domain.Trip, error)

	// ExistsActiveDuplicate reports whether the carrier already has an active
	// trip between the same cities (case and whitespace insensitive) on the
	// same departure date.
	ExistsActiveDuplicate(ctx context.Context, trip domain.Trip) (bool, error)

	// ListByCarrier returns one page of the carrier's trips ordered by
	// departure date ascending, plus the total count.
	ListByCarrier(ctx context.Context, carrierID uuid.UUID, p domain.PaginationParams) ([]domain.Trip, int64, error)

	// ListActive returns one page of all active trips, newest first, plus the total count.
	ListActive(ctx context.Context, p domain.PaginationParams) ([]domain.Trip, int64, error)

	// CountActiveByCarrier counts the carrier's active trips.
	CountActiveByCarrier(ctx context.Context, carrierID uuid.UUID) (int64, error)

	// FindCandidatesForRequest returns active trips on the request's country
	// pair departing between today and the desired delivery date with room for
	// the request's weight, excluding trips carried by the requester.
	// Earliest departures come first.
	FindCandidatesForRequest(ctx context.Context, req domain.ItemRequest, today time.Time) ([]domain.Trip, error)
}

// pgTripRepo is the Postgres implementation of TripRepo.
type pgTripRepo struct {
	db db
}

// NewTripRepo constructs a TripRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewTripRepo(db db) TripRepo {
	return &pgTripRepo{db: db}
}

// tripColumns is the select list understood by scanTrip. The table must be aliased t.
const tripColumns = `
	t.id, t.carrier_id,
	t.from_country, t.from_state, t.from_city,
	t.to_country, t.to_state, t.to_city,
	t.departure_date, t.return_date, t.available_capacity_kg::text,
	t.notes, t.status, t.created_at,
	(SELECT count(*) FROM matches mc WHERE mc.trip_id = t.id)`

// Create inserts a new trip row and returns the full persisted record.
func (r *pgTripRepo) Create(ctx context.Context, trip domain.Trip) (domain.Trip, error) {
	const q = `
		WITH t AS (
			INSERT INTO trips (
				carrier_id, from_country, from_state, from_city,
				to_country, to_state, to_city,
				departure_date, return_date, available_capacity_kg, notes, status
			) VALUES (
				@carrier_id, @from_country, @from_state, @from_city,
				@to_country, @to_state, @to_city,
				@departure_date, @return_date, @capacity::numeric, @notes, @status
			)
			RETURNING *
		)
		SELECT ` + tripColumns + ` FROM t`

	args := pgx.NamedArgs{
		"carrier_id":     trip.CarrierID,
		"from_country":   trip.Origin.Country,
		"from_state":     trip.Origin.State,
		"from_city":      trip.Origin.City,
		"to_country":     trip.Destination.Country,
		"to_state":       trip.Destination.State,
		"to_city":        trip.Destination.City,
		"departure_date": trip.DepartureDate,
		"return_date":    trip.ReturnDate, // nil becomes NULL
		"capacity":       trip.AvailableCapacityKg.String(),
		"notes":          trip.Notes,
		"status":         string(trip.Status),
	}

	result, err := scanTrip(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.Create: %w", err)
	}
	return result, nil
}

// GetByID retrieves a trip by primary key.
func (r *pgTripRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	q := `SELECT ` + tripColumns + ` FROM trips t WHERE t.id = @id`

	result, err := scanTrip(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetByID: %w", err)
	}
	return result, nil
}

// GetForUpdate retrieves a trip and locks its row.
func (r *pgTripRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	q := `SELECT ` + tripColumns + ` FROM trips t WHERE t.id = @id FOR UPDATE OF t`

	result, err := scanTrip(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetForUpdate: %w", err)
	}
	return result, nil
}

// SetCapacity writes a new available capacity. The CHECK constraint on the
// column rejects negative values as a last line of defence.
func (r *pgTripRepo) SetCapacity(ctx context.Context, id uuid.UUID, capacityKg decimal.Decimal) (domain.Trip, error) {
	const q = `
		WITH t AS (
			UPDATE trips
			SET available_capacity_kg = @capacity::numeric
			WHERE id = @id
			RETURNING *
		)
		SELECT ` + tripColumns + ` FROM t`

	args := pgx.NamedArgs{"id": id, "capacity": capacityKg.String()}
	result, err := scanTrip(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.SetCapacity: %w", err)
	}
	return result, nil
}

func (r *pgTripRepo) ExistsActiveDuplicate(ctx context.Context, trip domain.Trip) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM trips
			WHERE carrier_id = @carrier_id
			  AND LOWER(TRIM(from_city)) = LOWER(TRIM(@from_city))
			  AND LOWER(TRIM(to_city)) = LOWER(TRIM(@to_city))
			  AND departure_date = @departure_date
			  AND status = 'active'
		)`

	args := pgx.NamedArgs{
		"carrier_id":     trip.CarrierID,
		"from_city":      trip.Origin.City,
		"to_city":        trip.Destination.City,
		"departure_date": trip.DepartureDate,
	}
	var exists bool
	if err := r.db.QueryRow(ctx, q, args).Scan(&exists); err != nil {
		return false, fmt.Errorf("repo.TripRepo.ExistsActiveDuplicate: %w", err)
	}
	return exists, nil
}

func (r *pgTripRepo) ListByCarrier(ctx context.Context, carrierID uuid.UUID, p domain.PaginationParams) ([]domain.Trip, int64, error) {
	q := `
		SELECT ` + tripColumns + `
		FROM trips t
		WHERE t.carrier_id = @carrier_id
		ORDER BY t.departure_date ASC, t.created_at ASC
		LIMIT @limit OFFSET @offset`
	const countQ = `SELECT count(*) FROM trips WHERE carrier_id = @carrier_id`

	args := pgx.NamedArgs{"carrier_id": carrierID, "limit": p.Limit, "offset": p.Offset()}
	return r.listPaged(ctx, "ListByCarrier", q, countQ, args)
}

func (r *pgTripRepo) ListActive(ctx context.Context, p domain.PaginationParams) ([]domain.Trip, int64, error) {
	q := `
		SELECT ` + tripColumns + `
		FROM trips t
		WHERE t.status = 'active'
		ORDER BY t.created_at DESC
		LIMIT @limit OFFSET @offset`
	const countQ = `SELECT count(*) FROM trips WHERE status = 'active'`

	args := pgx.NamedArgs{"limit": p.Limit, "offset": p.Offset()}
	return r.listPaged(ctx, "ListActive", q, countQ, args)
}

func (r *pgTripRepo) CountActiveByCarrier(ctx context.Context, carrierID uuid.UUID) (int64, error) {
	const q = `SELECT count(*) FROM trips WHERE carrier_id = @carrier_id AND status = 'active'`

	var n int64
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"carrier_id": carrierID}).Scan(&n); err != nil {
		return 0, fmt.Errorf("repo.TripRepo.CountActiveByCarrier: %w", err)
	}
	return n, nil
}

func (r *pgTripRepo) FindCandidatesForRequest(ctx context.Context, req domain.ItemRequest, today time.Time) ([]domain.Trip, error) {
	q := `
		SELECT ` + tripColumns + `
		FROM trips t
		WHERE t.from_country = @from_country
		  AND t.to_country = @to_country
		  AND t.status = 'active'
		  AND t.departure_date BETWEEN @today AND @desired
		  AND t.available_capacity_kg >= @weight::numeric
		  AND t.carrier_id <> @requester_id
		ORDER BY t.departure_date ASC, t.created_at ASC`

	args := pgx.NamedArgs{
		"from_country": req.Origin.Country,
		"to_country":   req.Destination.Country,
		"today":        today,
		"desired":      req.DesiredDeliveryDate,
		"weight":       req.WeightKg.String(),
		"requester_id": req.RequesterID,
	}

	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, fmt.Errorf("repo.TripRepo.FindCandidatesForRequest: %w", err)
	}
	trips, err := collectTrips(rows)
	if err != nil {
		return nil, fmt.Errorf("repo.TripRepo.FindCandidatesForRequest: %w", err)
	}
	return trips, nil
}

func (r *pgTripRepo) listPaged(ctx context.Context, op, q, countQ string, args pgx.NamedArgs) ([]domain.Trip, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, countQ, args).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.TripRepo.%s: count: %w", op, err)
	}

	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.TripRepo.%s: %w", op, err)
	}
	trips, err := collectTrips(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.TripRepo.%s: %w", op, err)
	}
	return trips, total, nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows, allowing the scan helpers
// to be reused for both QueryRow and Query calls.
type scanner interface {
	Scan(dest ...any) error
}

func collectTrips(rows pgx.Rows) ([]domain.Trip, error) {
	defer rows.Close()

	var trips []domain.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return trips, nil
}

// tripScan holds the scan destinations for tripColumns so the same mapping
// can be reused by joins that select trip columns alongside others.
type tripScan struct {
	t        domain.Trip
	id       pgtype.UUID
	carrier  pgtype.UUID
	depDate  pgtype.Date
	retDate  pgtype.Date
	capacity string
	status   string
	matches  int64
}

func (ts *tripScan) dest() []any {
	return []any{
		&ts.id, &ts.carrier,
		&ts.t.Origin.Country, &ts.t.Origin.State, &ts.t.Origin.City,
		&ts.t.Destination.Country, &ts.t.Destination.State, &ts.t.Destination.City,
		&ts.depDate, &ts.retDate, &ts.capacity,
		&ts.t.Notes, &ts.status, &ts.t.CreatedAt,
		&ts.matches,
	}
}

// trip converts the scanned values, handling UUIDs, nullable return_date and
// the decimal capacity.
func (ts *tripScan) trip() (domain.Trip, error) {
	t := ts.t
	t.ID = uuid.UUID(ts.id.Bytes)
	t.CarrierID = uuid.UUID(ts.carrier.Bytes)
	t.DepartureDate = ts.depDate.Time
	if ts.retDate.Valid {
		rd := ts.retDate.Time
		t.ReturnDate = &rd
	}
	capacity, err := decimal.NewFromString(ts.capacity)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("parse capacity: %w", err)
	}
	t.AvailableCapacityKg = capacity
	t.Status = domain.TripStatus(ts.status)
	t.MatchCount = int(ts.matches)
	return t, nil
}

// scanTrip maps a single tripColumns row into a domain.Trip.
func scanTrip(s scanner) (domain.Trip, error) {
	var ts tripScan
	if err := s.Scan(ts.dest()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trip{}, domain.ErrNotFound
		}
		return domain.Trip{}, err
	}
	return ts.trip()
}
