package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RequestStatus is the lifecycle state of an item request.
type RequestStatus string

const (
	RequestActive    RequestStatus = "active"
	RequestFulfilled RequestStatus = "fulfilled"
	RequestClosed    RequestStatus = "closed"
)

// ItemRequest is someone's need to ship an item between two locations.
// Only Status changes once a request has been matched.
type ItemRequest struct {
	ID                  uuid.UUID       `json:"id"`
	RequesterID         uuid.UUID       `json:"requester_id"`
	ItemName            string          `json:"item_name"`
	Quantity            int             `json:"quantity"`
	WeightKg            decimal.Decimal `json:"weight_kg"`
	Origin              Location        `json:"origin"`
	Destination         Location        `json:"destination"`
	DesiredDeliveryDate time.Time       `json:"desired_delivery_date"`
	Notes               string          `json:"notes,omitempty"`
	Status              RequestStatus   `json:"status"`
	MatchCount          int             `json:"match_count"`
	CreatedAt           time.Time       `json:"created_at"`
}
