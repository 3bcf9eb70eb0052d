package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationCategory classifies a notification for client-side routing.
type NotificationCategory string

const (
	CategoryMatchUpdate  NotificationCategory = "match_update"
	CategoryNewTripMatch NotificationCategory = "new_trip_match"
	CategorySystem       NotificationCategory = "system"
)

// Notification is a message delivered to one user.
// RelatedID points at the match the notification is about, when there is one.
type Notification struct {
	ID        uuid.UUID            `json:"id"`
	UserID    uuid.UUID            `json:"-"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Category  NotificationCategory `json:"category"`
	IsRead    bool                 `json:"isRead"`
	RelatedID *uuid.UUID           `json:"relatedId,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
}

// MatchSummary is the match context attached to a notification in listings.
type MatchSummary struct {
	ItemName      string      `json:"itemName"`
	ToCity        string      `json:"toCity"`
	DepartureDate time.Time   `json:"departureDate"`
	MatchStatus   MatchStatus `json:"matchStatus"`
}

// NotificationDetail is a notification hydrated with its match context.
type NotificationDetail struct {
	Notification
	Details *MatchSummary `json:"details"`
}

// NotificationEvent is pushed to a user's realtime channel when a
// notification is created. Its JSON uses the same camelCase keys as the
// REST notification listing.
type NotificationEvent struct {
	Notification Notification `json:"notification"`
	UnreadCount  int64        `json:"unreadCount"`
}
