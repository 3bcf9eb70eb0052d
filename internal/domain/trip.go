// Package domain contains the core data types for the CarryMatch application.
// It has no database or transport dependencies and is imported by every other
// internal package (repo, service, handler).
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Location is a country/state/city triple. Matching only compares countries;
// state and city are informational and used for duplicate detection.
type Location struct {
	Country string `json:"country"`
	State   string `json:"state"`
	City    string `json:"city"`
}

// TripStatus is the lifecycle state of a trip.
type TripStatus string

const (
	TripActive   TripStatus = "active"
	TripInactive TripStatus = "inactive"
	TripClosed   TripStatus = "closed"
)

// Trip is a carrier's offer of spare luggage capacity between two locations.
// AvailableCapacityKg is mutated only through the capacity ledger.
type Trip struct {
	ID                  uuid.UUID       `json:"id"`
	CarrierID           uuid.UUID       `json:"carrier_id"`
	Origin              Location        `json:"origin"`
	Destination         Location        `json:"destination"`
	DepartureDate       time.Time       `json:"departure_date"`
	ReturnDate          *time.Time      `json:"return_date,omitempty"` // nil for one-way trips
	AvailableCapacityKg decimal.Decimal `json:"available_capacity_kg"`
	Notes               string          `json:"notes,omitempty"`
	Status              TripStatus      `json:"status"`
	MatchCount          int             `json:"match_count"`
	CreatedAt           time.Time       `json:"created_at"`
}

// Fits reports whether weight can still be carried on this trip.
func (t Trip) Fits(weight decimal.Decimal) bool {
	return weight.LessThanOrEqual(t.AvailableCapacityKg)
}
