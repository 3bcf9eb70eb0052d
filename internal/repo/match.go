package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/pkordes/carrymatch/internal/domain"
)

// MatchRepo defines the persistence operations for Matches.
type MatchRepo interface {
	// CreateIfAbsent inserts a pending match for the (trip, request) pair, or
	// returns the existing one. created reports whether a row was inserted.
	// The matches_pair_key unique constraint makes this safe under concurrency.
	CreateIfAbsent(ctx context.Context, tripID, requestID uuid.UUID) (m domain.Match, created bool, err error)

	// GetDetail loads a match with its trip and item request.
	// Returns domain.ErrNotFound if no match with that ID exists.
	GetDetail(ctx context.Context, id uuid.UUID) (domain.MatchDetail, error)

	// GetForUpdate loads a match and locks its row until the transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Match, error)

	// Update writes status and agreed weight if the stored version still equals
	// m.Version, then bumps the version.
	// Returns domain.ErrVersionConflict when the row changed underneath.
	Update(ctx context.Context, m domain.Match) (domain.Match, error)

	// ListForUser returns one page of matches visible to f.Viewer, newest
	// first, plus the total count. Pending matches whose request no longer
	// fits the trip's current capacity are excluded.
	ListForUser(ctx context.Context, f domain.MatchFilter) ([]domain.MatchDetail, int64, error)

	// CountPendingForUser counts pending matches visible to the user under the
	// same stale-visibility rule as ListForUser.
	CountPendingForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// pgMatchRepo is the Postgres implementation of MatchRepo.
type pgMatchRepo struct {
	db db
}

// NewMatchRepo constructs a MatchRepo backed by the provided db connection.
func NewMatchRepo(db db) MatchRepo {
	return &pgMatchRepo{db: db}
}

// matchColumns is the select list understood by matchScan. The table must be aliased m.
const matchColumns = `
	m.id, m.trip_id, m.item_request_id, m.status,
	m.agreed_weight_kg::text, m.version, m.created_at, m.updated_at`

// visibleClause is the stale-visibility guard shared by listings and counts.
const visibleClause = `(m.status <> 'pending' OR r.weight_kg <= t.available_capacity_kg)`

func (r *pgMatchRepo) CreateIfAbsent(ctx context.Context, tripID, requestID uuid.UUID) (domain.Match, bool, error) {
	const insertQ = `
		WITH m AS (
			INSERT INTO matches (trip_id, item_request_id, status)
			VALUES (@trip_id, @item_request_id, 'pending')
			ON CONFLICT (trip_id, item_request_id) DO NOTHING
			RETURNING *
		)
		SELECT ` + matchColumns + ` FROM m`
	const selectQ = `
		SELECT ` + matchColumns + `
		FROM matches m
		WHERE m.trip_id = @trip_id AND m.item_request_id = @item_request_id`

	args := pgx.NamedArgs{"trip_id": tripID, "item_request_id": requestID}

	m, err := scanMatch(r.db.QueryRow(ctx, insertQ, args))
	if err == nil {
		return m, true, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Match{}, false, fmt.Errorf("repo.MatchRepo.CreateIfAbsent: %w", err)
	}

	// DO NOTHING returns no row on conflict; read the row that won.
	m, err = scanMatch(r.db.QueryRow(ctx, selectQ, args))
	if err != nil {
		return domain.Match{}, false, fmt.Errorf("repo.MatchRepo.CreateIfAbsent: existing: %w", err)
	}
	return m, false, nil
}

func (r *pgMatchRepo) GetDetail(ctx context.Context, id uuid.UUID) (domain.MatchDetail, error) {
	q := `
		SELECT ` + matchColumns + `, ` + tripColumns + `, ` + requestColumns + `
		FROM matches m
		JOIN trips t ON t.id = m.trip_id
		JOIN item_requests r ON r.id = m.item_request_id
		WHERE m.id = @id`

	d, err := scanDetail(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.MatchDetail{}, fmt.Errorf("repo.MatchRepo.GetDetail: %w", err)
	}
	return d, nil
}

func (r *pgMatchRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Match, error) {
	q := `SELECT ` + matchColumns + ` FROM matches m WHERE m.id = @id FOR UPDATE`

	m, err := scanMatch(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.Match{}, fmt.Errorf("repo.MatchRepo.GetForUpdate: %w", err)
	}
	return m, nil
}

func (r *pgMatchRepo) Update(ctx context.Context, m domain.Match) (domain.Match, error) {
	const q = `
		WITH m AS (
			UPDATE matches
			SET status           = @status,
			    agreed_weight_kg = @agreed::numeric,
			    version          = version + 1,
			    updated_at       = now()
			WHERE id = @id AND version = @version
			RETURNING *
		)
		SELECT ` + matchColumns + ` FROM m`

	var agreed *string
	if m.AgreedWeightKg != nil {
		s := m.AgreedWeightKg.String()
		agreed = &s
	}
	args := pgx.NamedArgs{
		"id":      m.ID,
		"status":  string(m.Status),
		"agreed":  agreed, // nil becomes NULL
		"version": m.Version,
	}

	result, err := scanMatch(r.db.QueryRow(ctx, q, args))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Match{}, fmt.Errorf("repo.MatchRepo.Update: %w", domain.ErrVersionConflict)
	}
	if err != nil {
		return domain.Match{}, fmt.Errorf("repo.MatchRepo.Update: %w", err)
	}
	return result, nil
}

func (r *pgMatchRepo) ListForUser(ctx context.Context, f domain.MatchFilter) ([]domain.MatchDetail, int64, error) {
	where := []string{
		"(r.requester_id = @viewer OR t.carrier_id = @viewer)",
		visibleClause,
	}
	args := pgx.NamedArgs{
		"viewer": f.Viewer,
		"limit":  f.Page.Limit,
		"offset": f.Page.Offset(),
	}
	if f.TripID != nil {
		where = append(where, "m.trip_id = @trip_id")
		args["trip_id"] = *f.TripID
	}
	if f.ItemRequestID != nil {
		where = append(where, "m.item_request_id = @item_request_id")
		args["item_request_id"] = *f.ItemRequestID
	}
	if statuses := f.Toggle.Statuses(); statuses != nil {
		names := make([]string, len(statuses))
		for i, s := range statuses {
			names[i] = string(s)
		}
		where = append(where, "m.status = ANY(@statuses)")
		args["statuses"] = names
	}

	from := `
		FROM matches m
		JOIN trips t ON t.id = m.trip_id
		JOIN item_requests r ON r.id = m.item_request_id
		WHERE ` + strings.Join(where, "\n\t\t  AND ")

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) `+from, args).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.MatchRepo.ListForUser: count: %w", err)
	}

	q := `SELECT ` + matchColumns + `, ` + tripColumns + `, ` + requestColumns + from + `
		ORDER BY m.created_at DESC
		LIMIT @limit OFFSET @offset`

	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.MatchRepo.ListForUser: %w", err)
	}
	defer rows.Close()

	var details []domain.MatchDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repo.MatchRepo.ListForUser: scan: %w", err)
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repo.MatchRepo.ListForUser: rows: %w", err)
	}
	return details, total, nil
}

func (r *pgMatchRepo) CountPendingForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	const q = `
		SELECT count(*)
		FROM matches m
		JOIN trips t ON t.id = m.trip_id
		JOIN item_requests r ON r.id = m.item_request_id
		WHERE m.status = 'pending'
		  AND (r.requester_id = @user_id OR t.carrier_id = @user_id)
		  AND ` + visibleClause

	var n int64
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"user_id": userID}).Scan(&n); err != nil {
		return 0, fmt.Errorf("repo.MatchRepo.CountPendingForUser: %w", err)
	}
	return n, nil
}

type matchScan struct {
	m      domain.Match
	id     pgtype.UUID
	tripID pgtype.UUID
	reqID  pgtype.UUID
	status string
	agreed pgtype.Text
}

func (ms *matchScan) dest() []any {
	return []any{
		&ms.id, &ms.tripID, &ms.reqID, &ms.status,
		&ms.agreed, &ms.m.Version, &ms.m.CreatedAt, &ms.m.UpdatedAt,
	}
}

func (ms *matchScan) match() (domain.Match, error) {
	m := ms.m
	m.ID = uuid.UUID(ms.id.Bytes)
	m.TripID = uuid.UUID(ms.tripID.Bytes)
	m.ItemRequestID = uuid.UUID(ms.reqID.Bytes)

	status, err := domain.ParseMatchStatus(ms.status)
	if err != nil {
		return domain.Match{}, err
	}
	m.Status = status

	if ms.agreed.Valid {
		agreed, err := decimal.NewFromString(ms.agreed.String)
		if err != nil {
			return domain.Match{}, fmt.Errorf("parse agreed weight: %w", err)
		}
		m.AgreedWeightKg = &agreed
	}
	return m, nil
}

func scanMatch(s scanner) (domain.Match, error) {
	var ms matchScan
	if err := s.Scan(ms.dest()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Match{}, domain.ErrNotFound
		}
		return domain.Match{}, err
	}
	return ms.match()
}

// scanDetail maps a matchColumns+tripColumns+requestColumns row.
func scanDetail(s scanner) (domain.MatchDetail, error) {
	var (
		ms matchScan
		ts tripScan
		rs requestScan
	)
	dest := append(append(ms.dest(), ts.dest()...), rs.dest()...)
	if err := s.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MatchDetail{}, domain.ErrNotFound
		}
		return domain.MatchDetail{}, err
	}

	m, err := ms.match()
	if err != nil {
		return domain.MatchDetail{}, err
	}
	trip, err := ts.trip()
	if err != nil {
		return domain.MatchDetail{}, err
	}
	req, err := rs.request()
	if err != nil {
		return domain.MatchDetail{}, err
	}
	return domain.MatchDetail{Match: m, Trip: trip, Request: req}, nil
}
