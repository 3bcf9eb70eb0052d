package handler

import (
	"bytes"
	"net/http"
	"time"

	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/carrymatch/internal/domain"
)

// heartbeatInterval keeps idle event streams alive through proxies.
var heartbeatInterval = 25 * time.Second

// Notification is the API representation of a notification.
type Notification struct {
	ID        uuid.UUID                   `json:"id"`
	Title     string                      `json:"title"`
	Message   string                      `json:"message"`
	Category  domain.NotificationCategory `json:"category"`
	IsRead    bool                        `json:"isRead"`
	RelatedID *uuid.UUID                  `json:"relatedId,omitempty"`
	Details   *NotificationMatch          `json:"details"`
	CreatedAt time.Time                   `json:"createdAt"`
}

// NotificationMatch summarises the match a notification refers to.
type NotificationMatch struct {
	ItemName      string             `json:"itemName"`
	ToCity        string             `json:"toCity"`
	DepartureDate openapi_types.Date `json:"departureDate"`
	MatchStatus   domain.MatchStatus `json:"matchStatus"`
}

// UnreadCountResponse is the body of GET /notifications/unread-count.
type UnreadCountResponse struct {
	UnreadCount int64 `json:"unreadCount"`
}

// ListNotifications handles GET /notifications. Viewing the first page marks
// every notification as read; the rows returned still show their prior state.
func (s *Server) ListNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	p, err := pagination(r, defaultNotificationLimit)
	if err != nil {
		requestError(w, err.Error())
		return
	}
	page, err := s.notifications.List(r.Context(), user, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(page, notificationToResponse))
}

// GetUnreadCount handles GET /notifications/unread-count.
func (s *Server) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	n, err := s.notifications.UnreadCount(r.Context(), user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UnreadCountResponse{UnreadCount: n})
}

// MarkNotificationRead handles PATCH /notifications/{id}/read.
func (s *Server) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.notifications.MarkRead(r.Context(), id, user); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllNotificationsRead handles PATCH /notifications/mark-all-read.
func (s *Server) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	if err := s.notifications.MarkAllRead(r.Context(), user); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StreamNotifications handles GET /notifications/stream. It relays the user's
// realtime channel as server-sent events until the client goes away.
// Each event is a JSON-encoded domain.NotificationEvent.
func (s *Server) StreamNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	sub, err := s.stream.Subscribe(ctx, user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer sub.Close()

	rc := http.NewResponseController(w)
	// The server's write timeout would cut long-lived streams.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(": connected\n\n")); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		s.log.WarnContext(ctx, "streaming not supported", "error", err)
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		var frame []byte
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			frame = []byte(": ping\n\n")
		case msg, open := <-sub.C():
			if !open {
				return
			}
			frame = sseFrame("notification", msg)
		}
		if _, err := w.Write(frame); err != nil {
			s.log.DebugContext(ctx, "client disconnected during event stream", "user_id", user, "error", err)
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// sseFrame encodes one server-sent event. Payload lines are split so an
// embedded newline cannot end the event early.
func sseFrame(event string, payload []byte) []byte {
	var b bytes.Buffer
	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteByte('\n')
	for _, line := range bytes.Split(payload, []byte("\n")) {
		b.WriteString("data: ")
		b.Write(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.Bytes()
}

func notificationToResponse(n domain.NotificationDetail) Notification {
	resp := Notification{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Category:  n.Category,
		IsRead:    n.IsRead,
		RelatedID: n.RelatedID,
		CreatedAt: n.CreatedAt,
	}
	if n.Details != nil {
		resp.Details = &NotificationMatch{
			ItemName:      n.Details.ItemName,
			ToCity:        n.Details.ToCity,
			DepartureDate: openapi_types.Date{Time: n.Details.DepartureDate},
			MatchStatus:   n.Details.MatchStatus,
		}
	}
	return resp
}
