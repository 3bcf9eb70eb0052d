// Package main is the entry point for the CarryMatch API server.
// Its sole responsibility is wiring dependencies together and starting the server.
// No business logic belongs here.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver for database/sql
	"github.com/pressly/goose/v3"

	"github.com/pkordes/carrymatch/internal/config"
	"github.com/pkordes/carrymatch/internal/handler"
	"github.com/pkordes/carrymatch/internal/middleware"
	"github.com/pkordes/carrymatch/internal/queue"
	"github.com/pkordes/carrymatch/internal/realtime"
	"github.com/pkordes/carrymatch/internal/repo"
	"github.com/pkordes/carrymatch/internal/service"
	"github.com/pkordes/carrymatch/migrations"
)

func main() {
	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		// Use plain stderr before the logger is configured.
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// --- Database ---------------------------------------------------------
	// New() does not open connections immediately; the first query does.
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify the DB is reachable before accepting traffic.
	if err := pool.Ping(context.Background()); err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	slog.Info("database connection established")

	if cfg.MigrateOnStart {
		if err := migrate(context.Background(), cfg.DatabaseURL); err != nil {
			slog.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
	}

	// --- Realtime fan-out -------------------------------------------------
	var (
		publisher  service.Publisher  = realtime.Nop{}
		subscriber handler.Subscriber = realtime.Nop{}
	)
	if cfg.RedisAddr != "" {
		rdb := realtime.NewRedis(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			// Notifications are still persisted; only live delivery is lost.
			slog.Warn("redis unreachable; realtime delivery degraded", "addr", cfg.RedisAddr, "error", err)
		}
		hub := realtime.NewHub(rdb)
		publisher, subscriber = hub, hub
	}

	// --- Repositories and services ---------------------------------------
	trips := repo.NewTripRepo(pool)
	requests := repo.NewRequestRepo(pool)
	matches := repo.NewMatchRepo(pool)

	notifications := service.NewNotificationService(repo.NewNotificationRepo(pool), publisher, logger)
	engine := service.NewMatchingEngine(trips, requests, matches, notifications, logger)

	// --- Matching queue ---------------------------------------------------
	var journal queue.Journal = queue.NopJournal{}
	if cfg.OutboxPath != "" {
		bj, err := queue.OpenBoltJournal(cfg.OutboxPath)
		if err != nil {
			slog.Error("failed to open matching outbox", "path", cfg.OutboxPath, "error", err)
			os.Exit(1)
		}
		journal = bj
	}
	defer journal.Close()

	jobs := queue.New(engine.HandleJob, journal, queue.Options{
		Workers: cfg.MatchWorkers,
		Size:    cfg.MatchQueueSize,
		Durable: cfg.OutboxPath != "",
		Logger:  logger,
	})
	// workCtx outlives the HTTP server so in-flight matching can finish.
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	if err := jobs.Start(workCtx); err != nil {
		slog.Error("failed to start matching queue", "error", err)
		os.Exit(1)
	}

	srvDeps := handler.Deps{
		Trips:         service.NewTripService(trips, jobs, logger),
		Requests:      service.NewRequestService(requests, jobs, logger),
		Matches:       service.NewMatchService(repo.NewTransactor(pool), matches, notifications, logger),
		Notifications: notifications,
		Stream:        subscriber,
		Logger:        logger,
	}

	// --- Router -----------------------------------------------------------
	// Middleware is applied in order: RequestID → RealIP → Logger → Recoverer → CORS → body cap.
	// RequestID generates a unique trace ID per request.
	// RealIP sets r.RemoteAddr from X-Forwarded-For / X-Real-IP (safe behind a proxy).
	// SlogLogger writes one structured JSON log line per request.
	// Recoverer catches panics and returns HTTP 500 instead of crashing.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(cfg.MaxBodyBytes))

	r.Mount("/", handler.NewServer(srvDeps).Routes(middleware.NewAuth(cfg.JWTSecret)))

	// --- HTTP Server ------------------------------------------------------
	// Explicit timeouts prevent slowloris and resource exhaustion attacks.
	// The event stream handler lifts the write deadline for its own connection.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown: wait for OS signal, then give in-flight requests
	// up to 15 seconds to complete before forcefully closing.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	// Journaled jobs that do not finish here are replayed on the next start.
	if err := jobs.Shutdown(ctx); err != nil {
		slog.Warn("matching queue did not drain", "error", err)
	}
	slog.Info("server stopped")
}

// migrate applies every pending embedded migration. goose needs database/sql,
// so it gets a short-lived connection through the pgx stdlib driver.
func migrate(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("create goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	for _, r := range results {
		slog.Info("migration applied", "version", r.Source.Version, "path", r.Source.Path, "duration", r.Duration)
	}
	return nil
}
