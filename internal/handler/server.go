// Package handler implements the HTTP handlers for the CarryMatch API.
// All handlers are methods on Server. Methods are split into domain-specific
// files (health.go, trip.go, match.go, etc.) but share the same Server struct
// so they can access its dependencies.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pkordes/carrymatch/internal/domain"
	"github.com/pkordes/carrymatch/internal/realtime"
)

// TripServicer defines the trip operations the handlers depend on.
// Defining the interface here (in the consumer package) lets handler tests
// inject a mock without touching the database or service layer.
type TripServicer interface {
	Create(ctx context.Context, carrierID uuid.UUID, trip domain.Trip) (domain.Trip, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error)
	ListMine(ctx context.Context, carrierID uuid.UUID, p domain.PaginationParams) (domain.Page[domain.Trip], error)
	ListActive(ctx context.Context, p domain.PaginationParams) (domain.Page[domain.Trip], error)
	CountActive(ctx context.Context, carrierID uuid.UUID) (int64, error)
}

// RequestServicer defines the item request operations the handlers depend on.
type RequestServicer interface {
	Create(ctx context.Context, requesterID uuid.UUID, req domain.ItemRequest) (domain.ItemRequest, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.ItemRequest, error)
	ListMine(ctx context.Context, requesterID uuid.UUID, p domain.PaginationParams) (domain.Page[domain.ItemRequest], error)
	CountActive(ctx context.Context, requesterID uuid.UUID) (int64, error)
}

// MatchServicer defines the match lifecycle operations the handlers depend on.
type MatchServicer interface {
	UpdateStatus(ctx context.Context, matchID, actor uuid.UUID, action domain.Action) (domain.MatchDetail, error)
	Complete(ctx context.Context, matchID, actor uuid.UUID) (domain.MatchDetail, error)
	Get(ctx context.Context, matchID, viewer uuid.UUID) (domain.MatchDetail, error)
	List(ctx context.Context, f domain.MatchFilter) (domain.Page[domain.MatchDetail], error)
	CountPending(ctx context.Context, viewer uuid.UUID) (int64, error)
}

// NotificationServicer defines the notification operations the handlers depend on.
type NotificationServicer interface {
	List(ctx context.Context, userID uuid.UUID, p domain.PaginationParams) (domain.Page[domain.NotificationDetail], error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
}

// Subscriber opens a user's realtime notification feed.
// realtime.Hub and realtime.Nop both satisfy it.
type Subscriber interface {
	Subscribe(ctx context.Context, userID uuid.UUID) (*realtime.Subscription, error)
}

// Deps groups the collaborators a Server needs.
type Deps struct {
	Trips         TripServicer
	Requests      RequestServicer
	Matches       MatchServicer
	Notifications NotificationServicer
	Stream        Subscriber
	Logger        *slog.Logger
}

// Server implements every API endpoint. Wire it in main.go via Routes.
type Server struct {
	trips         TripServicer
	requests      RequestServicer
	matches       MatchServicer
	notifications NotificationServicer
	stream        Subscriber
	log           *slog.Logger
}

// NewServer constructs the Server with all its dependencies.
func NewServer(d Deps) *Server {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	stream := d.Stream
	if stream == nil {
		stream = realtime.Nop{}
	}
	return &Server{
		trips:         d.Trips,
		requests:      d.Requests,
		matches:       d.Matches,
		notifications: d.Notifications,
		stream:        stream,
		log:           log,
	}
}

// NewHealthHandler returns a Server for health-check-only use.
func NewHealthHandler() *Server {
	return NewServer(Deps{})
}

// Routes builds the API router. auth guards every route except the health
// check and the OpenAPI document; it must place the actor in the request
// context (see middleware.NewAuth).
func (s *Server) Routes(auth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.GetHealth)
	r.Get("/openapi.yaml", s.GetOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(auth)

		r.Route("/trips", func(r chi.Router) {
			r.Post("/", s.CreateTrip)
			r.Get("/", s.ListTrips)
			r.Get("/mine", s.ListMyTrips)
			r.Get("/count", s.CountMyTrips)
			r.Get("/{id}", s.GetTrip)
		})

		r.Route("/item-requests", func(r chi.Router) {
			r.Post("/", s.CreateItemRequest)
			r.Get("/mine", s.ListMyItemRequests)
			r.Get("/count", s.CountMyItemRequests)
			r.Get("/{id}", s.GetItemRequest)
		})

		r.Route("/matches", func(r chi.Router) {
			r.Get("/", s.ListMatches)
			r.Get("/count/pending", s.CountPendingMatches)
			r.Get("/{id}", s.GetMatch)
			r.Patch("/{id}/status", s.UpdateMatchStatus)
			r.Post("/{id}/complete", s.CompleteMatch)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.ListNotifications)
			r.Get("/unread-count", s.GetUnreadCount)
			r.Get("/stream", s.StreamNotifications)
			r.Patch("/mark-all-read", s.MarkAllNotificationsRead)
			r.Patch("/{id}/read", s.MarkNotificationRead)
		})
	})

	return r
}
