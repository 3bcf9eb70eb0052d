package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/carrymatch/internal/domain"
	"github.com/pkordes/carrymatch/testutil"
)

// newTestTx opens a transaction against the test database that is rolled
// back when the test finishes, giving free per-test isolation.
func newTestTx(t *testing.T) pgx.Tx {
	t.Helper()
	pool := testutil.NewPool(t)

	tx, err := pool.Begin(context.Background())
	require.NoError(t, err, "begin transaction")

	t.Cleanup(func() {
		_ = tx.Rollback(context.Background())
	})
	return tx
}

func kg(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// tripFixture returns an active Lagos to London trip with 10kg free.
// Callers can override individual fields.
func tripFixture(carrier uuid.UUID) domain.Trip {
	return domain.Trip{
		CarrierID:           carrier,
		Origin:              domain.Location{Country: "NG", State: "Lagos", City: "Lagos"},
		Destination:         domain.Location{Country: "GB", State: "England", City: "London"},
		DepartureDate:       date(2030, 6, 1),
		AvailableCapacityKg: kg("10"),
		Notes:               "window seat",
		Status:              domain.TripActive,
	}
}

// requestFixture returns an active 2kg request on the same route as tripFixture.
func requestFixture(requester uuid.UUID) domain.ItemRequest {
	return domain.ItemRequest{
		RequesterID:         requester,
		ItemName:            "Spices",
		Quantity:            1,
		WeightKg:            kg("2"),
		Origin:              domain.Location{Country: "NG", State: "Lagos", City: "Ikeja"},
		Destination:         domain.Location{Country: "GB", State: "England", City: "Leeds"},
		DesiredDeliveryDate: date(2030, 6, 20),
		Status:              domain.RequestActive,
	}
}

// onlyIDs keeps the ids present in keep, preserving their order in ids.
// The test database may hold rows from other tests, so ordering
// assertions filter down to the fixtures they created.
func onlyIDs(ids []uuid.UUID, keep ...uuid.UUID) []uuid.UUID {
	want := make(map[uuid.UUID]bool, len(keep))
	for _, id := range keep {
		want[id] = true
	}
	var out []uuid.UUID
	for _, id := range ids {
		if want[id] {
			out = append(out, id)
		}
	}
	return out
}
