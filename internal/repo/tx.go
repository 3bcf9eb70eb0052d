package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Repos groups the repositories that take part in a transaction.
type Repos struct {
	Trips    TripRepo
	Requests RequestRepo
	Matches  MatchRepo
}

// Transactor runs fn inside a single database transaction. The Repos handed
// to fn are bound to that transaction; row locks taken through them are held
// until fn returns. A nil return commits, anything else rolls back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}

// beginner is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx. A pgx.Tx
// begins a savepoint, which lets integration tests run everything inside
// their own rolled-back transaction.
type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type pgTransactor struct {
	db beginner
}

// NewTransactor constructs a Transactor over the given pool or connection.
func NewTransactor(db beginner) Transactor {
	return &pgTransactor{db: db}
}

func (t *pgTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error {
	err := pgx.BeginFunc(ctx, t.db, func(tx pgx.Tx) error {
		return fn(ctx, Repos{
			Trips:    NewTripRepo(tx),
			Requests: NewRequestRepo(tx),
			Matches:  NewMatchRepo(tx),
		})
	})
	if err != nil {
		return fmt.Errorf("repo.Transactor.WithinTx: %w", err)
	}
	return nil
}
