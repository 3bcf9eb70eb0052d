package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/carrymatch/internal/domain"
)

// NotificationRepo defines the persistence operations for Notifications.
type NotificationRepo interface {
	// Create inserts a notification and returns it with id and created_at set.
	Create(ctx context.Context, n domain.Notification) (domain.Notification, error)

	// ListByUser returns one page of the user's notifications, newest first,
	// plus the total count. Notifications related to a match carry a summary
	// of that match.
	ListByUser(ctx context.Context, userID uuid.UUID, p domain.PaginationParams) ([]domain.NotificationDetail, int64, error)

	// CountUnread counts the user's unread notifications.
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)

	// MarkRead marks one notification read. The notification must belong to userID.
	// Returns domain.ErrNotFound otherwise.
	MarkRead(ctx context.Context, id, userID uuid.UUID) error

	// MarkAllRead marks every unread notification of the user read and returns
	// how many rows changed.
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type pgNotificationRepo struct {
	db db
}

// NewNotificationRepo constructs a NotificationRepo backed by the provided db connection.
func NewNotificationRepo(db db) NotificationRepo {
	return &pgNotificationRepo{db: db}
}

const notificationColumns = `
	n.id, n.user_id, n.title, n.message, n.category, n.is_read, n.related_id, n.created_at`

func (r *pgNotificationRepo) Create(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	const q = `
		WITH n AS (
			INSERT INTO notifications (user_id, title, message, category, related_id)
			VALUES (@user_id, @title, @message, @category, @related_id)
			RETURNING *
		)
		SELECT ` + notificationColumns + ` FROM n`

	args := pgx.NamedArgs{
		"user_id":    n.UserID,
		"title":      n.Title,
		"message":    n.Message,
		"category":   string(n.Category),
		"related_id": n.RelatedID,
	}

	var ns notificationScan
	if err := r.db.QueryRow(ctx, q, args).Scan(ns.dest()...); err != nil {
		return domain.Notification{}, fmt.Errorf("repo.NotificationRepo.Create: %w", err)
	}
	return ns.notification(), nil
}

func (r *pgNotificationRepo) ListByUser(ctx context.Context, userID uuid.UUID, p domain.PaginationParams) ([]domain.NotificationDetail, int64, error) {
	const countQ = `SELECT count(*) FROM notifications WHERE user_id = @user_id`
	const q = `
		SELECT ` + notificationColumns + `,
		       r.item_name, t.to_city, t.departure_date, m.status
		FROM notifications n
		LEFT JOIN matches m ON m.id = n.related_id
		LEFT JOIN trips t ON t.id = m.trip_id
		LEFT JOIN item_requests r ON r.id = m.item_request_id
		WHERE n.user_id = @user_id
		ORDER BY n.created_at DESC
		LIMIT @limit OFFSET @offset`

	args := pgx.NamedArgs{"user_id": userID, "limit": p.Limit, "offset": p.Offset()}

	var total int64
	if err := r.db.QueryRow(ctx, countQ, args).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.NotificationRepo.ListByUser: count: %w", err)
	}

	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.NotificationRepo.ListByUser: %w", err)
	}
	defer rows.Close()

	var out []domain.NotificationDetail
	for rows.Next() {
		var (
			ns       notificationScan
			itemName pgtype.Text
			toCity   pgtype.Text
			depDate  pgtype.Date
			status   pgtype.Text
		)
		dest := append(ns.dest(), &itemName, &toCity, &depDate, &status)
		if err := rows.Scan(dest...); err != nil {
			return nil, 0, fmt.Errorf("repo.NotificationRepo.ListByUser: scan: %w", err)
		}

		d := domain.NotificationDetail{Notification: ns.notification()}
		// The match may have been removed since; details stay nil then.
		if status.Valid {
			d.Details = &domain.MatchSummary{
				ItemName:      itemName.String,
				ToCity:        toCity.String,
				DepartureDate: dateOrZero(depDate),
				MatchStatus:   domain.MatchStatus(status.String),
			}
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repo.NotificationRepo.ListByUser: rows: %w", err)
	}
	return out, total, nil
}

func (r *pgNotificationRepo) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	const q = `SELECT count(*) FROM notifications WHERE user_id = @user_id AND NOT is_read`

	var n int64
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"user_id": userID}).Scan(&n); err != nil {
		return 0, fmt.Errorf("repo.NotificationRepo.CountUnread: %w", err)
	}
	return n, nil
}

func (r *pgNotificationRepo) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	const q = `UPDATE notifications SET is_read = true WHERE id = @id AND user_id = @user_id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "user_id": userID})
	if err != nil {
		return fmt.Errorf("repo.NotificationRepo.MarkRead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.NotificationRepo.MarkRead: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *pgNotificationRepo) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	const q = `UPDATE notifications SET is_read = true WHERE user_id = @user_id AND NOT is_read`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("repo.NotificationRepo.MarkAllRead: %w", err)
	}
	return tag.RowsAffected(), nil
}

type notificationScan struct {
	n        domain.Notification
	id       pgtype.UUID
	userID   pgtype.UUID
	category string
	related  pgtype.UUID
}

func (ns *notificationScan) dest() []any {
	return []any{
		&ns.id, &ns.userID, &ns.n.Title, &ns.n.Message,
		&ns.category, &ns.n.IsRead, &ns.related, &ns.n.CreatedAt,
	}
}

func (ns *notificationScan) notification() domain.Notification {
	n := ns.n
	n.ID = uuid.UUID(ns.id.Bytes)
	n.UserID = uuid.UUID(ns.userID.Bytes)
	n.Category = domain.NotificationCategory(ns.category)
	if ns.related.Valid {
		id := uuid.UUID(ns.related.Bytes)
		n.RelatedID = &id
	}
	return n
}

func dateOrZero(d pgtype.Date) time.Time {
	if !d.Valid {
		return time.Time{}
	}
	return d.Time
}
