package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pkordes/carrymatch/internal/domain"
	"github.com/pkordes/carrymatch/internal/repo"
)

// Publisher pushes a notification event to a user's live connections.
type Publisher interface {
	Publish(ctx context.Context, userID uuid.UUID, ev domain.NotificationEvent) error
}

// NotificationService stores notifications and pushes them to connected clients.
type NotificationService struct {
	repo   repo.NotificationRepo
	pub    Publisher
	logger *slog.Logger
}

func NewNotificationService(r repo.NotificationRepo, pub Publisher, logger *slog.Logger) *NotificationService {
	return &NotificationService{repo: r, pub: pub, logger: loggerOrDefault(logger)}
}

// Notify stores an unread notification and publishes it together with the
// user's new unread count. Only the store can fail the call; publishing is
// best effort since the notification is already durable.
func (s *NotificationService) Notify(ctx context.Context, userID uuid.UUID, title, message string, category domain.NotificationCategory, relatedID *uuid.UUID) error {
	n, err := s.repo.Create(ctx, domain.Notification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Category:  category,
		RelatedID: relatedID,
	})
	if err != nil {
		return fmt.Errorf("service.NotificationService.Notify: %w", err)
	}

	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "count unread notifications", "user_id", userID, "error", err)
		return nil
	}
	if err := s.pub.Publish(ctx, userID, domain.NotificationEvent{Notification: n, UnreadCount: unread}); err != nil {
		s.logger.WarnContext(ctx, "publish notification", "user_id", userID, "notification_id", n.ID, "error", err)
	}
	return nil
}

// List returns one page of the user's notifications, newest first. Viewing
// the first page marks everything read; the returned rows still show the
// read state they had when fetched.
func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, p domain.PaginationParams) (domain.Page[domain.NotificationDetail], error) {
	data, total, err := s.repo.ListByUser(ctx, userID, p)
	if err != nil {
		return domain.Page[domain.NotificationDetail]{}, fmt.Errorf("service.NotificationService.List: %w", err)
	}

	if p.Page == 1 && len(data) > 0 {
		if _, err := s.repo.MarkAllRead(ctx, userID); err != nil {
			return domain.Page[domain.NotificationDetail]{}, fmt.Errorf("service.NotificationService.List: %w", err)
		}
	}
	return domain.NewPage(data, total, p), nil
}

// UnreadCount counts the user's unread notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("service.NotificationService.UnreadCount: %w", err)
	}
	return n, nil
}

// MarkRead marks one of the user's notifications read.
// Returns domain.ErrNotFound if it does not exist or belongs to someone else.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		return fmt.Errorf("service.NotificationService.MarkRead: %w", err)
	}
	return nil
}

// MarkAllRead marks every notification of the user read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.repo.MarkAllRead(ctx, userID); err != nil {
		return fmt.Errorf("service.NotificationService.MarkAllRead: %w", err)
	}
	return nil
}
