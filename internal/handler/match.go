package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pkordes/carrymatch/internal/domain"
)

// Match is the API representation of a match as seen by one viewer.
// DisplayStatus and CanAction depend on which side of the handshake the
// viewer is on.
type Match struct {
	ID             uuid.UUID          `json:"id"`
	TripID         uuid.UUID          `json:"tripId"`
	ItemRequestID  uuid.UUID          `json:"itemRequestId"`
	Status         domain.MatchStatus `json:"status"`
	AgreedWeightKg *decimal.Decimal   `json:"agreedWeightKg,omitempty"`
	DisplayStatus  string             `json:"displayStatus"`
	CanAction      bool               `json:"canAction"`
	Trip           Trip               `json:"trip"`
	ItemRequest    ItemRequest        `json:"itemRequest"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// UpdateMatchStatusRequest is the body of PATCH /matches/{id}/status.
// Status must be "accepted" or "rejected".
type UpdateMatchStatusRequest struct {
	Status string `json:"status"`
}

// ListMatches handles GET /matches.
// Filters: ?status= (pending|accepted|rejected; anything else means all),
// ?tripId=, ?itemRequestId=, plus ?page= and ?limit=.
func (s *Server) ListMatches(w http.ResponseWriter, r *http.Request) {
	viewer, ok := actor(w, r)
	if !ok {
		return
	}
	p, err := pagination(r, defaultLimit)
	if err != nil {
		requestError(w, err.Error())
		return
	}
	tripID, err := queryUUID(r, "tripId")
	if err != nil {
		requestError(w, err.Error())
		return
	}
	requestID, err := queryUUID(r, "itemRequestId")
	if err != nil {
		requestError(w, err.Error())
		return
	}

	page, err := s.matches.List(r.Context(), domain.MatchFilter{
		Viewer:        viewer,
		Toggle:        domain.ParseStatusToggle(r.URL.Query().Get("status")),
		TripID:        tripID,
		ItemRequestID: requestID,
		Page:          p,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(page, func(d domain.MatchDetail) Match {
		return matchToResponse(d, viewer)
	}))
}

// CountPendingMatches handles GET /matches/count/pending.
func (s *Server) CountPendingMatches(w http.ResponseWriter, r *http.Request) {
	viewer, ok := actor(w, r)
	if !ok {
		return
	}
	n, err := s.matches.CountPending(r.Context(), viewer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// GetMatch handles GET /matches/{id}.
func (s *Server) GetMatch(w http.ResponseWriter, r *http.Request) {
	viewer, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, err := s.matches.Get(r.Context(), id, viewer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matchToResponse(d, viewer))
}

// UpdateMatchStatus handles PATCH /matches/{id}/status, one step of the
// double handshake.
func (s *Server) UpdateMatchStatus(w http.ResponseWriter, r *http.Request) {
	who, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body UpdateMatchStatusRequest
	if !decodeBody(w, r, &body) {
		return
	}
	action, err := domain.ParseAction(body.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	d, err := s.matches.UpdateStatus(r.Context(), id, who, action)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matchToResponse(d, who))
}

// CompleteMatch handles POST /matches/{id}/complete.
func (s *Server) CompleteMatch(w http.ResponseWriter, r *http.Request) {
	who, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, err := s.matches.Complete(r.Context(), id, who)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matchToResponse(d, who))
}

func matchToResponse(d domain.MatchDetail, viewer uuid.UUID) Match {
	v := d.ViewFor(viewer)
	return Match{
		ID:             d.ID,
		TripID:         d.TripID,
		ItemRequestID:  d.ItemRequestID,
		Status:         d.Status,
		AgreedWeightKg: d.AgreedWeightKg,
		DisplayStatus:  v.DisplayStatus,
		CanAction:      v.CanAction,
		Trip:           tripToResponse(d.Trip),
		ItemRequest:    itemRequestToResponse(d.Request),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}
