// Package queue runs matching jobs on a bounded pool of workers.
//
// Jobs are journaled before they are buffered and removed from the journal
// once their handler has returned, so a crash loses no accepted work: the
// journal is replayed on start, and a periodic redrive re-offers jobs that
// did not fit the buffer when they arrived.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind names the entity whose creation triggered a job.
type Kind string

const (
	KindTripCreated    Kind = "trip_created"
	KindRequestCreated Kind = "request_created"
)

// Job asks for counterpart matching of one newly created trip or request.
type Job struct {
	ID         uuid.UUID `json:"id"`
	Kind       Kind      `json:"kind"`
	TargetID   uuid.UUID `json:"target_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Handler processes one job. A returned error is logged; the job is not retried.
// A job may be delivered more than once after a crash or a redrive, so
// handlers must be idempotent.
type Handler func(ctx context.Context, job Job) error

var (
	// ErrClosed is returned by Enqueue after Shutdown has begun.
	ErrClosed = errors.New("queue closed")
	// ErrFull is returned when the buffer is full and the journal cannot keep the job.
	ErrFull = errors.New("queue full")
)

// Options tunes a Queue. Zero values fall back to defaults.
type Options struct {
	Workers         int           // default 4
	Size            int           // buffered jobs, default 256
	RedriveInterval time.Duration // default 30s
	// Durable reports whether the journal survives restarts. Overflowing jobs
	// are kept for redrive only when it does.
	Durable bool
	Logger  *slog.Logger
}

// Queue is a bounded in-process work queue backed by a Journal.
type Queue struct {
	handler Handler
	journal Journal
	opts    Options
	logger  *slog.Logger

	jobs chan Job
	stop chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	started bool
	queued  map[uuid.UUID]struct{} // buffered or running
}

// New constructs a Queue. Call Start before enqueuing.
func New(h Handler, j Journal, opts Options) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Size <= 0 {
		opts.Size = 256
	}
	if opts.RedriveInterval <= 0 {
		opts.RedriveInterval = 30 * time.Second
	}
	if j == nil {
		j = NopJournal{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		handler: h,
		journal: j,
		opts:    opts,
		logger:  logger,
		jobs:    make(chan Job, opts.Size),
		stop:    make(chan struct{}),
		queued:  make(map[uuid.UUID]struct{}),
	}
}

// Start launches the workers, replays the journal, and begins the periodic
// redrive. ctx is passed to every handler call and should outlive Shutdown.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.started || q.closed {
		q.mu.Unlock()
		return fmt.Errorf("queue.Queue.Start: already started or closed")
	}
	q.started = true
	q.mu.Unlock()

	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}

	replayed := q.redrive()
	if replayed > 0 {
		q.logger.Info("replayed journaled matching jobs", "count", replayed)
	}

	q.wg.Add(1)
	go q.redriveLoop()
	return nil
}

// Enqueue journals job and offers it to the workers without blocking.
// A missing ID or timestamp is filled in.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if err := q.journal.Put(job); err != nil {
		return fmt.Errorf("queue.Queue.Enqueue: %w", err)
	}

	if q.offer(job) {
		return nil
	}

	if !q.opts.Durable {
		_ = q.journal.Delete(job.ID)
		return ErrFull
	}
	q.logger.WarnContext(ctx, "matching queue full; job journaled for redrive",
		"job_id", job.ID, "kind", job.Kind, "target_id", job.TargetID)
	return nil
}

// Shutdown stops intake, lets workers finish buffered and in-flight jobs,
// and returns when they are done or ctx expires. Jobs still journaled when
// ctx expires are replayed on the next Start.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.stop)
	close(q.jobs)
	started := q.started
	q.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue.Queue.Shutdown: %w", ctx.Err())
	}
}

// offer buffers job unless it is already buffered or running.
// Sends happen under mu so they never race with close(q.jobs).
func (q *Queue) offer(job Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if _, ok := q.queued[job.ID]; ok {
		return true
	}
	select {
	case q.jobs <- job:
		q.queued[job.ID] = struct{}{}
		return true
	default:
		return false
	}
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()
	for job := range q.jobs {
		q.run(ctx, job)

		if err := q.journal.Delete(job.ID); err != nil {
			q.logger.Error("remove matching job from journal", "job_id", job.ID, "error", err)
		}
		q.mu.Lock()
		delete(q.queued, job.ID)
		q.mu.Unlock()
	}
}

func (q *Queue) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("matching job panicked",
				"job_id", job.ID, "kind", job.Kind, "target_id", job.TargetID,
				"panic", r, "stack", string(debug.Stack()))
		}
	}()

	start := time.Now()
	if err := q.handler(ctx, job); err != nil {
		q.logger.Error("matching job failed",
			"job_id", job.ID, "kind", job.Kind, "target_id", job.TargetID, "error", err)
		return
	}
	q.logger.Debug("matching job done",
		"job_id", job.ID, "kind", job.Kind, "duration_ms", time.Since(start).Milliseconds())
}

func (q *Queue) redriveLoop() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.opts.RedriveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			if n := q.redrive(); n > 0 {
				q.logger.Info("redrove journaled matching jobs", "count", n)
			}
		}
	}
}

// redrive offers journaled jobs to the workers and reports how many were newly buffered.
func (q *Queue) redrive() int {
	pending, err := q.journal.Pending()
	if err != nil {
		q.logger.Error("read matching journal", "error", err)
		return 0
	}

	n := 0
	for _, job := range pending {
		q.mu.Lock()
		_, already := q.queued[job.ID]
		q.mu.Unlock()
		if already {
			continue
		}
		if !q.offer(job) {
			break
		}
		n++
	}
	return n
}
