package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/shopspring/decimal"

	"github.com/pkordes/carrymatch/internal/domain"
)

// Trip is the API representation of a trip.
type Trip struct {
	ID                  uuid.UUID           `json:"id"`
	CarrierID           uuid.UUID           `json:"carrierId"`
	Origin              domain.Location     `json:"origin"`
	Destination         domain.Location     `json:"destination"`
	DepartureDate       openapi_types.Date  `json:"departureDate"`
	ReturnDate          *openapi_types.Date `json:"returnDate,omitempty"`
	AvailableCapacityKg decimal.Decimal     `json:"availableCapacityKg"`
	Notes               *string             `json:"notes,omitempty"`
	Status              domain.TripStatus   `json:"status"`
	MatchCount          int                 `json:"matchCount"`
	CreatedAt           time.Time           `json:"createdAt"`
}

// CreateTripRequest is the body of POST /trips.
type CreateTripRequest struct {
	Origin              domain.Location     `json:"origin"`
	Destination         domain.Location     `json:"destination"`
	DepartureDate       openapi_types.Date  `json:"departureDate"`
	ReturnDate          *openapi_types.Date `json:"returnDate,omitempty"`
	AvailableCapacityKg decimal.Decimal     `json:"availableCapacityKg"`
	Notes               *string             `json:"notes,omitempty"`
}

// CreateTrip handles POST /trips.
func (s *Server) CreateTrip(w http.ResponseWriter, r *http.Request) {
	carrier, ok := actor(w, r)
	if !ok {
		return
	}
	var body CreateTripRequest
	if !decodeBody(w, r, &body) {
		return
	}

	created, err := s.trips.Create(r.Context(), carrier, requestToTrip(body))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tripToResponse(created))
}

// ListTrips handles GET /trips: every active trip, newest first.
// Supports ?page= and ?limit= query parameters (defaults: page=1, limit=10, max=100).
func (s *Server) ListTrips(w http.ResponseWriter, r *http.Request) {
	p, err := pagination(r, defaultLimit)
	if err != nil {
		requestError(w, err.Error())
		return
	}
	page, err := s.trips.ListActive(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(page, tripToResponse))
}

// ListMyTrips handles GET /trips/mine.
func (s *Server) ListMyTrips(w http.ResponseWriter, r *http.Request) {
	carrier, ok := actor(w, r)
	if !ok {
		return
	}
	p, err := pagination(r, defaultLimit)
	if err != nil {
		requestError(w, err.Error())
		return
	}
	page, err := s.trips.ListMine(r.Context(), carrier, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(page, tripToResponse))
}

// CountMyTrips handles GET /trips/count.
func (s *Server) CountMyTrips(w http.ResponseWriter, r *http.Request) {
	carrier, ok := actor(w, r)
	if !ok {
		return
	}
	n, err := s.trips.CountActive(r.Context(), carrier)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// GetTrip handles GET /trips/{id}.
func (s *Server) GetTrip(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	trip, err := s.trips.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tripToResponse(trip))
}

// --- mapping helpers --------------------------------------------------------

// requestToTrip converts a CreateTripRequest body into a domain.Trip.
// Field-level validation is left to the service.
func requestToTrip(body CreateTripRequest) domain.Trip {
	t := domain.Trip{
		Origin:              body.Origin,
		Destination:         body.Destination,
		DepartureDate:       body.DepartureDate.Time,
		AvailableCapacityKg: body.AvailableCapacityKg,
	}
	if body.ReturnDate != nil {
		rd := body.ReturnDate.Time
		t.ReturnDate = &rd
	}
	if body.Notes != nil {
		t.Notes = *body.Notes
	}
	return t
}

// tripToResponse converts a domain.Trip into its API representation.
func tripToResponse(t domain.Trip) Trip {
	resp := Trip{
		ID:                  t.ID,
		CarrierID:           t.CarrierID,
		Origin:              t.Origin,
		Destination:         t.Destination,
		DepartureDate:       openapi_types.Date{Time: t.DepartureDate},
		AvailableCapacityKg: t.AvailableCapacityKg,
		Status:              t.Status,
		MatchCount:          t.MatchCount,
		CreatedAt:           t.CreatedAt,
	}
	if t.Notes != "" {
		resp.Notes = &t.Notes
	}
	if t.ReturnDate != nil {
		rd := openapi_types.Date{Time: *t.ReturnDate}
		resp.ReturnDate = &rd
	}
	return resp
}

// Page is the listing envelope {data,total,page,lastPage}.
type Page[T any] struct {
	Data     []T   `json:"data"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	LastPage int   `json:"lastPage"`
}

// mapPage converts every row of a domain page with conv.
func mapPage[D, T any](p domain.Page[D], conv func(D) T) Page[T] {
	data := make([]T, len(p.Data))
	for i, d := range p.Data {
		data[i] = conv(d)
	}
	return Page[T]{Data: data, Total: p.Total, Page: p.Page, LastPage: p.LastPage}
}
