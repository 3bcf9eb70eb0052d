package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/carrymatch/internal/domain"
	"github.com/pkordes/carrymatch/internal/handler"
	"github.com/pkordes/carrymatch/internal/middleware"
	"github.com/pkordes/carrymatch/internal/realtime"
)

// ---- mocks -----------------------------------------------------------------
// Each mock is a test double with one function field per method.
// Set only the fields your test needs; calling an unset one panics.

type mockTripServicer struct {
	create      func(ctx context.Context, carrierID uuid.UUID, trip domain.Trip) (domain.Trip, error)
	getByID     func(ctx context.Context, id uuid.UUID) (domain.Trip, error)
	listMine    func(ctx context.Context, carrierID uuid.UUID, p domain.PaginationParams) (domain.Page[domain.Trip], error)
	listActive  func(ctx context.Context, p domain.PaginationParams) (domain.Page[domain.Trip], error)
	countActive func(ctx context.Context, carrierID uuid.UUID) (int64, error)
}

func (m *mockTripServicer) Create(ctx context.Context, carrierID uuid.UUID, t domain.Trip) (domain.Trip, error) {
	return m.create(ctx, carrierID, t)
}
func (m *mockTripServicer) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	return m.getByID(ctx, id)
}
func (m *mockTripServicer) ListMine(ctx context.Context, carrierID uuid.UUID, p domain.PaginationParams) (domain.Page[domain.Trip], error) {
	return m.listMine(ctx, carrierID, p)
}
func (m *mockTripServicer) ListActive(ctx context.Context, p domain.PaginationParams) (domain.Page[domain.Trip], error) {
	return m.listActive(ctx, p)
}
func (m *mockTripServicer) CountActive(ctx context.Context, carrierID uuid.UUID) (int64, error) {
	return m.countActive(ctx, carrierID)
}

type mockRequestServicer struct {
	create      func(ctx context.Context, requesterID uuid.UUID, req domain.ItemRequest) (domain.ItemRequest, error)
	getByID     func(ctx context.Context, id uuid.UUID) (domain.ItemRequest, error)
	listMine    func(ctx context.Context, requesterID uuid.UUID, p domain.PaginationParams) (domain.Page[domain.ItemRequest], error)
	countActive func(ctx context.Context, requesterID uuid.UUID) (int64, error)
}

func (m *mockRequestServicer) Create(ctx context.Context, requesterID uuid.UUID, r domain.ItemRequest) (domain.ItemRequest, error) {
	return m.create(ctx, requesterID, r)
}
func (m *mockRequestServicer) GetByID(ctx context.Context, id uuid.UUID) (domain.ItemRequest, error) {
	return m.getByID(ctx, id)
}
func (m *mockRequestServicer) ListMine(ctx context.Context, requesterID uuid.UUID, p domain.PaginationParams) (domain.Page[domain.ItemRequest], error) {
	return m.listMine(ctx, requesterID, p)
}
func (m *mockRequestServicer) CountActive(ctx context.Context, requesterID uuid.UUID) (int64, error) {
	return m.countActive(ctx, requesterID)
}

type mockMatchServicer struct {
	updateStatus func(ctx context.Context, matchID, actor uuid.UUID, action domain.Action) (domain.MatchDetail, error)
	complete     func(ctx context.Context, matchID, actor uuid.UUID) (domain.MatchDetail, error)
	get          func(ctx context.Context, matchID, viewer uuid.UUID) (domain.MatchDetail, error)
	list         func(ctx context.Context, f domain.MatchFilter) (domain.Page[domain.MatchDetail], error)
	countPending func(ctx context.Context, viewer uuid.UUID) (int64, error)
}

func (m *mockMatchServicer) UpdateStatus(ctx context.Context, matchID, actor uuid.UUID, action domain.Action) (domain.MatchDetail, error) {
	return m.updateStatus(ctx, matchID, actor, action)
}
func (m *mockMatchServicer) Complete(ctx context.Context, matchID, actor uuid.UUID) (domain.MatchDetail, error) {
	return m.complete(ctx, matchID, actor)
}
func (m *mockMatchServicer) Get(ctx context.Context, matchID, viewer uuid.UUID) (domain.MatchDetail, error) {
	return m.get(ctx, matchID, viewer)
}
func (m *mockMatchServicer) List(ctx context.Context, f domain.MatchFilter) (domain.Page[domain.MatchDetail], error) {
	return m.list(ctx, f)
}
func (m *mockMatchServicer) CountPending(ctx context.Context, viewer uuid.UUID) (int64, error) {
	return m.countPending(ctx, viewer)
}

type mockNotificationServicer struct {
	list        func(ctx context.Context, userID uuid.UUID, p domain.PaginationParams) (domain.Page[domain.NotificationDetail], error)
	unreadCount func(ctx context.Context, userID uuid.UUID) (int64, error)
	markRead    func(ctx context.Context, id, userID uuid.UUID) error
	markAllRead func(ctx context.Context, userID uuid.UUID) error
}

func (m *mockNotificationServicer) List(ctx context.Context, userID uuid.UUID, p domain.PaginationParams) (domain.Page[domain.NotificationDetail], error) {
	return m.list(ctx, userID, p)
}
func (m *mockNotificationServicer) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return m.unreadCount(ctx, userID)
}
func (m *mockNotificationServicer) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	return m.markRead(ctx, id, userID)
}
func (m *mockNotificationServicer) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return m.markAllRead(ctx, userID)
}

type mockSubscriber struct {
	subscribe func(ctx context.Context, userID uuid.UUID) (*realtime.Subscription, error)
}

func (m *mockSubscriber) Subscribe(ctx context.Context, userID uuid.UUID) (*realtime.Subscription, error) {
	return m.subscribe(ctx, userID)
}

// compile-time checks: each mock must satisfy its handler interface.
var (
	_ handler.TripServicer         = (*mockTripServicer)(nil)
	_ handler.RequestServicer      = (*mockRequestServicer)(nil)
	_ handler.MatchServicer        = (*mockMatchServicer)(nil)
	_ handler.NotificationServicer = (*mockNotificationServicer)(nil)
	_ handler.Subscriber           = (*mockSubscriber)(nil)
)

// ---- helpers ---------------------------------------------------------------

const actorHeader = "X-Test-Actor"

// headerAuth stands in for middleware.NewAuth: it trusts the X-Test-Actor
// header and rejects requests without one.
func headerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get(actorHeader))
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(middleware.WithActor(r.Context(), id)))
	})
}

// newHTTPHandler wires a Server with the given deps into its router.
// This mirrors how main.go wires it in production, minus token checks.
func newHTTPHandler(d handler.Deps) http.Handler {
	return handler.NewServer(d).Routes(headerAuth)
}

// do sends one request as actor and returns the recorder.
func do(t *testing.T, h http.Handler, method, target string, actor uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != uuid.Nil {
		req.Header.Set(actorHeader, actor.String())
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func kg(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func tripFixture(carrier uuid.UUID) domain.Trip {
	return domain.Trip{
		ID:                  uuid.New(),
		CarrierID:           carrier,
		Origin:              domain.Location{Country: "NG", State: "Lagos", City: "Lagos"},
		Destination:         domain.Location{Country: "GB", State: "England", City: "London"},
		DepartureDate:       date(2030, 6, 1),
		AvailableCapacityKg: kg("10"),
		Status:              domain.TripActive,
		CreatedAt:           time.Now().UTC(),
	}
}

func requestFixture(requester uuid.UUID) domain.ItemRequest {
	return domain.ItemRequest{
		ID:                  uuid.New(),
		RequesterID:         requester,
		ItemName:            "Spices",
		Quantity:            1,
		WeightKg:            kg("2"),
		Origin:              domain.Location{Country: "NG", State: "Lagos", City: "Lagos"},
		Destination:         domain.Location{Country: "GB", State: "England", City: "London"},
		DesiredDeliveryDate: date(2030, 6, 20),
		Status:              domain.RequestActive,
		CreatedAt:           time.Now().UTC(),
	}
}

func matchFixture(carrier, requester uuid.UUID, status domain.MatchStatus) domain.MatchDetail {
	trip := tripFixture(carrier)
	req := requestFixture(requester)
	return domain.MatchDetail{
		Match: domain.Match{
			ID:            uuid.New(),
			TripID:        trip.ID,
			ItemRequestID: req.ID,
			Status:        status,
			CreatedAt:     time.Now().UTC(),
			UpdatedAt:     time.Now().UTC(),
		},
		Trip:    trip,
		Request: req,
	}
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
