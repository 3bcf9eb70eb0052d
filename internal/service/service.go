// Package service contains the business logic for the CarryMatch API.
// Services validate inputs, enforce business rules, and orchestrate repo calls.
// No SQL lives here; services depend on repo interfaces, not implementations.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/carrymatch/internal/domain"
	"github.com/pkordes/carrymatch/internal/queue"
)

// Notifier delivers a notification to one user. Callers treat it as best
// effort: a failure is logged and never undoes the change being announced.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, title, message string, category domain.NotificationCategory, relatedID *uuid.UUID) error
}

// Enqueuer accepts matching jobs for asynchronous processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.Job) error
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// today truncates now to a UTC calendar date.
func today(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func validLocation(l domain.Location) bool {
	return !blank(l.Country) && !blank(l.State) && !blank(l.City)
}
