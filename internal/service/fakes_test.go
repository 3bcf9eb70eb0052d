package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pkordes/carrymatch/internal/domain"
	"github.com/pkordes/carrymatch/internal/queue"
	"github.com/pkordes/carrymatch/internal/repo"
)

// memStore is an in-memory stand-in for Postgres. WithinTx holds the store
// mutex for the whole callback, which gives the same serialization a row
// lock would, and restores a snapshot when the callback fails.
type memStore struct {
	mu      sync.Mutex
	trips   map[uuid.UUID]domain.Trip
	reqs    map[uuid.UUID]domain.ItemRequest
	matches map[uuid.UUID]domain.Match
	clock   time.Time

	// failCreate, when set, makes CreateIfAbsent fail for the pairs it returns an error for.
	failCreate func(tripID, reqID uuid.UUID) error
}

func newMemStore() *memStore {
	return &memStore{
		trips:   map[uuid.UUID]domain.Trip{},
		reqs:    map[uuid.UUID]domain.ItemRequest{},
		matches: map[uuid.UUID]domain.Match{},
		clock:   time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) addTrip(t domain.Trip) domain.Trip {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = uuid.New()
	t.CreatedAt = s.tick()
	if t.Status == "" {
		t.Status = domain.TripActive
	}
	s.trips[t.ID] = t
	return t
}

func (s *memStore) addRequest(r domain.ItemRequest) domain.ItemRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = uuid.New()
	r.CreatedAt = s.tick()
	if r.Status == "" {
		r.Status = domain.RequestActive
	}
	s.reqs[r.ID] = r
	return r
}

func (s *memStore) trip(id uuid.UUID) domain.Trip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trips[id]
}

func (s *memStore) request(id uuid.UUID) domain.ItemRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reqs[id]
}

func (s *memStore) match(id uuid.UUID) domain.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matches[id]
}

func (s *memStore) setCapacity(id uuid.UUID, kg decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.trips[id]
	t.AvailableCapacityKg = kg
	s.trips[id] = t
}

func (s *memStore) matchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.matches)
}

func (s *memStore) Trips() memTrips       { return memTrips{s: s} }
func (s *memStore) Requests() memRequests { return memRequests{s: s} }
func (s *memStore) Matches() memMatches   { return memMatches{s: s} }

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, r repo.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trips, reqs, matches := clone(s.trips), clone(s.reqs), clone(s.matches)
	err := fn(ctx, repo.Repos{
		Trips:    memTrips{s: s, inTx: true},
		Requests: memRequests{s: s, inTx: true},
		Matches:  memMatches{s: s, inTx: true},
	})
	if err != nil {
		s.trips, s.reqs, s.matches = trips, reqs, matches
		return fmt.Errorf("memStore.WithinTx: %w", err)
	}
	return nil
}

func clone[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// lock takes the store mutex unless the caller already holds it through WithinTx.
func (s *memStore) lock(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

var (
	_ repo.Transactor  = (*memStore)(nil)
	_ repo.TripRepo    = memTrips{}
	_ repo.RequestRepo = memRequests{}
	_ repo.MatchRepo   = memMatches{}
)

// ---- trips -----------------------------------------------------------------

type memTrips struct {
	s    *memStore
	inTx bool
}

func (v memTrips) Create(_ context.Context, t domain.Trip) (domain.Trip, error) {
	defer v.s.lock(v.inTx)()
	t.ID = uuid.New()
	t.CreatedAt = v.s.tick()
	v.s.trips[t.ID] = t
	return t, nil
}

func (v memTrips) GetByID(_ context.Context, id uuid.UUID) (domain.Trip, error) {
	defer v.s.lock(v.inTx)()
	t, ok := v.s.trips[id]
	if !ok {
		return domain.Trip{}, domain.ErrNotFound
	}
	return t, nil
}

func (v memTrips) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	return v.GetByID(ctx, id)
}

func (v memTrips) SetCapacity(_ context.Context, id uuid.UUID, kg decimal.Decimal) (domain.Trip, error) {
	defer v.s.lock(v.inTx)()
	t, ok := v.s.trips[id]
	if !ok {
		return domain.Trip{}, domain.ErrNotFound
	}
	if kg.IsNegative() {
		return domain.Trip{}, fmt.Errorf("check constraint: capacity %s < 0", kg)
	}
	t.AvailableCapacityKg = kg
	v.s.trips[id] = t
	return t, nil
}

func (v memTrips) ExistsActiveDuplicate(context.Context, domain.Trip) (bool, error) {
	return false, nil
}

func (v memTrips) ListByCarrier(context.Context, uuid.UUID, domain.PaginationParams) ([]domain.Trip, int64, error) {
	return nil, 0, nil
}

func (v memTrips) ListActive(context.Context, domain.PaginationParams) ([]domain.Trip, int64, error) {
	return nil, 0, nil
}

func (v memTrips) CountActiveByCarrier(context.Context, uuid.UUID) (int64, error) {
	return 0, nil
}

func (v memTrips) FindCandidatesForRequest(_ context.Context, req domain.ItemRequest, today time.Time) ([]domain.Trip, error) {
	defer v.s.lock(v.inTx)()
	var out []domain.Trip
	for _, t := range v.s.trips {
		if t.Origin.Country == req.Origin.Country &&
			t.Destination.Country == req.Destination.Country &&
			t.Status == domain.TripActive &&
			!t.DepartureDate.Before(today) &&
			!t.DepartureDate.After(req.DesiredDeliveryDate) &&
			t.Fits(req.WeightKg) &&
			t.CarrierID != req.RequesterID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureDate.Before(out[j].DepartureDate) })
	return out, nil
}

// ---- requests --------------------------------------------------------------

type memRequests struct {
	s    *memStore
	inTx bool
}

func (v memRequests) Create(_ context.Context, r domain.ItemRequest) (domain.ItemRequest, error) {
	defer v.s.lock(v.inTx)()
	r.ID = uuid.New()
	r.CreatedAt = v.s.tick()
	v.s.reqs[r.ID] = r
	return r, nil
}

func (v memRequests) GetByID(_ context.Context, id uuid.UUID) (domain.ItemRequest, error) {
	defer v.s.lock(v.inTx)()
	r, ok := v.s.reqs[id]
	if !ok {
		return domain.ItemRequest{}, domain.ErrNotFound
	}
	return r, nil
}

func (v memRequests) SetStatus(_ context.Context, id uuid.UUID, status domain.RequestStatus) error {
	defer v.s.lock(v.inTx)()
	r, ok := v.s.reqs[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status = status
	v.s.reqs[id] = r
	return nil
}

func (v memRequests) ExistsActiveDuplicate(context.Context, domain.ItemRequest) (bool, error) {
	return false, nil
}

func (v memRequests) ListByRequester(context.Context, uuid.UUID, domain.PaginationParams) ([]domain.ItemRequest, int64, error) {
	return nil, 0, nil
}

func (v memRequests) CountActiveByRequester(context.Context, uuid.UUID) (int64, error) {
	return 0, nil
}

func (v memRequests) FindCandidatesForTrip(_ context.Context, t domain.Trip) ([]domain.ItemRequest, error) {
	defer v.s.lock(v.inTx)()
	var out []domain.ItemRequest
	for _, r := range v.s.reqs {
		if r.Origin.Country == t.Origin.Country &&
			r.Destination.Country == t.Destination.Country &&
			r.Status == domain.RequestActive &&
			!r.DesiredDeliveryDate.Before(t.DepartureDate) &&
			t.Fits(r.WeightKg) &&
			r.RequesterID != t.CarrierID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ---- matches ---------------------------------------------------------------

type memMatches struct {
	s    *memStore
	inTx bool
}

func (v memMatches) CreateIfAbsent(_ context.Context, tripID, reqID uuid.UUID) (domain.Match, bool, error) {
	defer v.s.lock(v.inTx)()
	if v.s.failCreate != nil {
		if err := v.s.failCreate(tripID, reqID); err != nil {
			return domain.Match{}, false, err
		}
	}
	for _, m := range v.s.matches {
		if m.TripID == tripID && m.ItemRequestID == reqID {
			return m, false, nil
		}
	}
	now := v.s.tick()
	m := domain.Match{
		ID:            uuid.New(),
		TripID:        tripID,
		ItemRequestID: reqID,
		Status:        domain.MatchPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	v.s.matches[m.ID] = m
	return m, true, nil
}

func (v memMatches) detail(m domain.Match) domain.MatchDetail {
	return domain.MatchDetail{Match: m, Trip: v.s.trips[m.TripID], Request: v.s.reqs[m.ItemRequestID]}
}

func (v memMatches) GetDetail(_ context.Context, id uuid.UUID) (domain.MatchDetail, error) {
	defer v.s.lock(v.inTx)()
	m, ok := v.s.matches[id]
	if !ok {
		return domain.MatchDetail{}, domain.ErrNotFound
	}
	return v.detail(m), nil
}

func (v memMatches) GetForUpdate(_ context.Context, id uuid.UUID) (domain.Match, error) {
	defer v.s.lock(v.inTx)()
	m, ok := v.s.matches[id]
	if !ok {
		return domain.Match{}, domain.ErrNotFound
	}
	return m, nil
}

func (v memMatches) Update(_ context.Context, m domain.Match) (domain.Match, error) {
	defer v.s.lock(v.inTx)()
	cur, ok := v.s.matches[m.ID]
	if !ok || cur.Version != m.Version {
		return domain.Match{}, domain.ErrVersionConflict
	}
	m.Version++
	m.UpdatedAt = v.s.tick()
	v.s.matches[m.ID] = m
	return m, nil
}

func (v memMatches) ListForUser(_ context.Context, f domain.MatchFilter) ([]domain.MatchDetail, int64, error) {
	defer v.s.lock(v.inTx)()
	var all []domain.MatchDetail
	for _, m := range v.s.matches {
		if d := v.detail(m); f.Matches(d) {
			all = append(all, d)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	start := f.Page.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + f.Page.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (v memMatches) CountPendingForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	_, total, err := v.ListForUser(ctx, domain.MatchFilter{
		Viewer: userID,
		Toggle: domain.TogglePending,
		Page:   domain.PaginationParams{Page: 1, Limit: 1},
	})
	return total, err
}

// ---- collaborators ---------------------------------------------------------

type sentNote struct {
	to       uuid.UUID
	title    string
	category domain.NotificationCategory
	related  uuid.UUID
	ctxErr   error
}

// recordingNotifier captures notifications; err, when set, is returned from every call.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNote
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, to uuid.UUID, title, _ string, category domain.NotificationCategory, related *uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	note := sentNote{to: to, title: title, category: category, ctxErr: ctx.Err()}
	if related != nil {
		note.related = *related
	}
	n.sent = append(n.sent, note)
	return n.err
}

func (n *recordingNotifier) notes() []sentNote {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentNote(nil), n.sent...)
}

// recordingEnqueuer captures jobs; err, when set, is returned from every call.
type recordingEnqueuer struct {
	mu   sync.Mutex
	jobs []queue.Job
	err  error
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, job queue.Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, job)
	return e.err
}

// ---- fixtures --------------------------------------------------------------

func kg(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// fixedNow is the clock used by tests; fixture trips depart after it.
func fixedNow() time.Time {
	return time.Date(2030, 5, 1, 9, 30, 0, 0, time.UTC)
}

func tripFor(carrier uuid.UUID, capacity string) domain.Trip {
	return domain.Trip{
		CarrierID:           carrier,
		Origin:              domain.Location{Country: "NG", State: "Lagos", City: "Lagos"},
		Destination:         domain.Location{Country: "GB", State: "England", City: "London"},
		DepartureDate:       date(2030, 6, 1),
		AvailableCapacityKg: kg(capacity),
		Status:              domain.TripActive,
	}
}

func requestFor(requester uuid.UUID, weight string) domain.ItemRequest {
	return domain.ItemRequest{
		RequesterID:         requester,
		ItemName:            "Spices",
		Quantity:            1,
		WeightKg:            kg(weight),
		Origin:              domain.Location{Country: "NG", State: "Lagos", City: "Ikeja"},
		Destination:         domain.Location{Country: "GB", State: "England", City: "Leeds"},
		DesiredDeliveryDate: date(2030, 6, 20),
		Status:              domain.RequestActive,
	}
}
