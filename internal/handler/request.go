package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/shopspring/decimal"

	"github.com/pkordes/carrymatch/internal/domain"
)

// ItemRequest is the API representation of an item request.
type ItemRequest struct {
	ID                  uuid.UUID            `json:"id"`
	RequesterID         uuid.UUID            `json:"requesterId"`
	ItemName            string               `json:"itemName"`
	Quantity            int                  `json:"quantity"`
	WeightKg            decimal.Decimal      `json:"weightKg"`
	Origin              domain.Location      `json:"origin"`
	Destination         domain.Location      `json:"destination"`
	DesiredDeliveryDate openapi_types.Date   `json:"desiredDeliveryDate"`
	Notes               *string              `json:"notes,omitempty"`
	Status              domain.RequestStatus `json:"status"`
	MatchCount          int                  `json:"matchCount"`
	CreatedAt           time.Time            `json:"createdAt"`
}

// CreateItemRequestRequest is the body of POST /item-requests.
type CreateItemRequestRequest struct {
	ItemName            string             `json:"itemName"`
	Quantity            int                `json:"quantity"`
	WeightKg            decimal.Decimal    `json:"weightKg"`
	Origin              domain.Location    `json:"origin"`
	Destination         domain.Location    `json:"destination"`
	DesiredDeliveryDate openapi_types.Date `json:"desiredDeliveryDate"`
	Notes               *string            `json:"notes,omitempty"`
}

// CreateItemRequest handles POST /item-requests.
func (s *Server) CreateItemRequest(w http.ResponseWriter, r *http.Request) {
	requester, ok := actor(w, r)
	if !ok {
		return
	}
	var body CreateItemRequestRequest
	if !decodeBody(w, r, &body) {
		return
	}

	created, err := s.requests.Create(r.Context(), requester, bodyToItemRequest(body))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, itemRequestToResponse(created))
}

// ListMyItemRequests handles GET /item-requests/mine.
func (s *Server) ListMyItemRequests(w http.ResponseWriter, r *http.Request) {
	requester, ok := actor(w, r)
	if !ok {
		return
	}
	p, err := pagination(r, defaultLimit)
	if err != nil {
		requestError(w, err.Error())
		return
	}
	page, err := s.requests.ListMine(r.Context(), requester, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(page, itemRequestToResponse))
}

// CountMyItemRequests handles GET /item-requests/count.
func (s *Server) CountMyItemRequests(w http.ResponseWriter, r *http.Request) {
	requester, ok := actor(w, r)
	if !ok {
		return
	}
	n, err := s.requests.CountActive(r.Context(), requester)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// GetItemRequest handles GET /item-requests/{id}.
func (s *Server) GetItemRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, err := s.requests.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itemRequestToResponse(req))
}

func bodyToItemRequest(body CreateItemRequestRequest) domain.ItemRequest {
	req := domain.ItemRequest{
		ItemName:            body.ItemName,
		Quantity:            body.Quantity,
		WeightKg:            body.WeightKg,
		Origin:              body.Origin,
		Destination:         body.Destination,
		DesiredDeliveryDate: body.DesiredDeliveryDate.Time,
	}
	if body.Notes != nil {
		req.Notes = *body.Notes
	}
	return req
}

func itemRequestToResponse(req domain.ItemRequest) ItemRequest {
	resp := ItemRequest{
		ID:                  req.ID,
		RequesterID:         req.RequesterID,
		ItemName:            req.ItemName,
		Quantity:            req.Quantity,
		WeightKg:            req.WeightKg,
		Origin:              req.Origin,
		Destination:         req.Destination,
		DesiredDeliveryDate: openapi_types.Date{Time: req.DesiredDeliveryDate},
		Status:              req.Status,
		MatchCount:          req.MatchCount,
		CreatedAt:           req.CreatedAt,
	}
	if req.Notes != "" {
		resp.Notes = &req.Notes
	}
	return resp
}
