package domain

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StatusToggle groups match statuses the way listings present them.
type StatusToggle string

const (
	ToggleAll      StatusToggle = ""
	TogglePending  StatusToggle = "pending"
	ToggleAccepted StatusToggle = "accepted"
	ToggleRejected StatusToggle = "rejected"
)

// ParseStatusToggle is case-insensitive. Unknown values mean no status filter.
func ParseStatusToggle(s string) StatusToggle {
	switch t := StatusToggle(strings.ToLower(strings.TrimSpace(s))); t {
	case TogglePending, ToggleAccepted, ToggleRejected:
		return t
	}
	return ToggleAll
}

// Statuses lists the stored statuses covered by the toggle; nil means all.
// The accepted family includes both half-accepted handshake states.
func (t StatusToggle) Statuses() []MatchStatus {
	switch t {
	case TogglePending:
		return []MatchStatus{MatchPending}
	case ToggleAccepted:
		return []MatchStatus{MatchAccepted, MatchCarrierAccepted, MatchRequesterAccepted}
	case ToggleRejected:
		return []MatchStatus{MatchRejected}
	}
	return nil
}

// MatchFilter selects the matches a viewer may list.
type MatchFilter struct {
	Viewer        uuid.UUID
	Toggle        StatusToggle
	TripID        *uuid.UUID
	ItemRequestID *uuid.UUID
	Page          PaginationParams
}

// StaleHidden is the stale-visibility guard: a pending match whose request no
// longer fits the trip's current capacity is hidden from listings. Its stored
// status is left untouched.
func StaleHidden(status MatchStatus, weight, available decimal.Decimal) bool {
	return status == MatchPending && weight.GreaterThan(available)
}

// Matches reports whether d passes every clause of the filter, including the
// stale-visibility guard. Pagination is not applied.
func (f MatchFilter) Matches(d MatchDetail) bool {
	if d.Trip.CarrierID != f.Viewer && d.Request.RequesterID != f.Viewer {
		return false
	}
	if f.TripID != nil && d.TripID != *f.TripID {
		return false
	}
	if f.ItemRequestID != nil && d.ItemRequestID != *f.ItemRequestID {
		return false
	}
	if statuses := f.Toggle.Statuses(); statuses != nil {
		found := false
		for _, s := range statuses {
			if s == d.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return !StaleHidden(d.Status, d.Request.WeightKg, d.Trip.AvailableCapacityKg)
}
