package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MatchStatus is the handshake state of a match.
type MatchStatus string

const (
	MatchPending           MatchStatus = "pending"
	MatchCarrierAccepted   MatchStatus = "carrier_accepted"
	MatchRequesterAccepted MatchStatus = "requester_accepted"
	MatchAccepted          MatchStatus = "accepted"
	MatchRejected          MatchStatus = "rejected"
	MatchCompleted         MatchStatus = "completed"
)

// ParseMatchStatus converts a stored or client-supplied value into a MatchStatus.
func ParseMatchStatus(s string) (MatchStatus, error) {
	switch st := MatchStatus(s); st {
	case MatchPending, MatchCarrierAccepted, MatchRequesterAccepted,
		MatchAccepted, MatchRejected, MatchCompleted:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown match status %q", ErrValidation, s)
}

// Role is the part an actor plays in a match.
type Role int

const (
	RoleNone Role = iota
	RoleCarrier
	RoleRequester
)

func (r Role) String() string {
	switch r {
	case RoleCarrier:
		return "carrier"
	case RoleRequester:
		return "requester"
	}
	return "none"
}

// Action is what an actor asks to do with a match.
type Action string

const (
	ActionAccept Action = "accepted"
	ActionReject Action = "rejected"
)

// ParseAction accepts the two statuses a client may request.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionAccept, ActionReject:
		return a, nil
	}
	return "", fmt.Errorf("%w: status must be %q or %q", ErrValidation, ActionAccept, ActionReject)
}

// Match pairs one trip with one item request. At most one exists per pair.
type Match struct {
	ID             uuid.UUID        `json:"id"`
	TripID         uuid.UUID        `json:"trip_id"`
	ItemRequestID  uuid.UUID        `json:"item_request_id"`
	Status         MatchStatus      `json:"status"`
	AgreedWeightKg *decimal.Decimal `json:"agreed_weight_kg,omitempty"` // set once capacity is deducted
	Version        int              `json:"-"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// MatchDetail is a match loaded together with its trip and item request.
type MatchDetail struct {
	Match
	Trip    Trip
	Request ItemRequest
}

// RoleOf resolves the actor's role against the match's owners.
// Returns ErrUnauthorized when the actor owns neither side.
func RoleOf(actor uuid.UUID, trip Trip, req ItemRequest) (Role, error) {
	switch actor {
	case trip.CarrierID:
		return RoleCarrier, nil
	case req.RequesterID:
		return RoleRequester, nil
	}
	return RoleNone, ErrUnauthorized
}

// Counterparty returns the id of the party who did not act.
func Counterparty(role Role, trip Trip, req ItemRequest) uuid.UUID {
	if role == RoleCarrier {
		return req.RequesterID
	}
	return trip.CarrierID
}

// Step is the outcome of a legal transition.
type Step struct {
	To     MatchStatus
	Deduct bool // commit request weight against the trip
	Refund bool // release previously committed weight
}

// NextStep is the match transition function. Every (status, role, action)
// combination not listed returns ErrInvalidTransition.
//
// Capacity is carrier-owned, so only a carrier acceptance deducts. A reject
// refunds only from carrier_accepted, the one non-terminal status reached by
// a deduction.
func NextStep(from MatchStatus, role Role, action Action) (Step, error) {
	if role != RoleCarrier && role != RoleRequester {
		return Step{}, ErrUnauthorized
	}
	switch from {
	case MatchPending:
		switch {
		case action == ActionReject:
			return Step{To: MatchRejected}, nil
		case action == ActionAccept && role == RoleCarrier:
			return Step{To: MatchCarrierAccepted, Deduct: true}, nil
		case action == ActionAccept && role == RoleRequester:
			return Step{To: MatchRequesterAccepted}, nil
		}
	case MatchCarrierAccepted:
		switch {
		case action == ActionReject:
			return Step{To: MatchRejected, Refund: true}, nil
		case action == ActionAccept && role == RoleRequester:
			return Step{To: MatchAccepted}, nil
		}
	case MatchRequesterAccepted:
		switch {
		case action == ActionReject:
			return Step{To: MatchRejected}, nil
		case action == ActionAccept && role == RoleCarrier:
			return Step{To: MatchAccepted, Deduct: true}, nil
		}
	case MatchAccepted, MatchRejected, MatchCompleted:
		return Step{}, fmt.Errorf("%w: match is %s", ErrInvalidTransition, from)
	}
	return Step{}, fmt.Errorf("%w: %s cannot %s a %s match", ErrInvalidTransition, role, verb(action), from)
}

// CanComplete reports whether role may mark a match in status from as delivered.
func CanComplete(from MatchStatus, role Role) error {
	if role != RoleCarrier {
		return fmt.Errorf("%w: only the carrier can complete a match", ErrInvalidTransition)
	}
	if from != MatchAccepted {
		return fmt.Errorf("%w: match is %s", ErrInvalidTransition, from)
	}
	return nil
}

// RefundAmount is the weight released when a deducted match is rejected.
// Rows written before agreed weight was recorded fall back to the request weight.
func (m Match) RefundAmount(req ItemRequest) decimal.Decimal {
	if m.AgreedWeightKg != nil {
		return *m.AgreedWeightKg
	}
	return req.WeightKg
}

func verb(a Action) string {
	if a == ActionAccept {
		return "accept"
	}
	return "reject"
}

// View is a viewer-specific rendering hint for a match.
type View struct {
	DisplayStatus string `json:"display_status"`
	CanAction     bool   `json:"can_action"`
}

// ViewFor describes the match from viewer's side of the handshake.
func (d MatchDetail) ViewFor(viewer uuid.UUID) View {
	isCarrier := viewer == d.Trip.CarrierID
	isRequester := viewer == d.Request.RequesterID

	switch d.Status {
	case MatchPending:
		return View{DisplayStatus: "New Match - Pending", CanAction: true}
	case MatchCarrierAccepted:
		if isCarrier {
			return View{DisplayStatus: "Waiting for requester..."}
		}
		return View{DisplayStatus: "Traveler accepted! Your turn.", CanAction: true}
	case MatchRequesterAccepted:
		if isRequester {
			return View{DisplayStatus: "Waiting for traveler..."}
		}
		return View{DisplayStatus: "Requester accepted! Your turn.", CanAction: true}
	case MatchAccepted:
		return View{DisplayStatus: "Matched! Coordinate now."}
	case MatchRejected:
		return View{DisplayStatus: "Declined"}
	case MatchCompleted:
		return View{DisplayStatus: "Delivered"}
	}
	return View{DisplayStatus: string(d.Status)}
}
