package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-signup-api/internal/config"
	"github.com/go-signup-api/internal/domain"
	"github.com/go-signup-api/internal/metrics"
	"golang.org/x/time/rate"
)

// Handler processes one claimed payload. A non-nil error reschedules the job
// until its retry ceiling, after which it is parked as failed.
type Handler func(ctx context.Context, p domain.NotificationPayload) error

const (
	idlePoll = 500 * time.Millisecond

	// visibilityMargin pads the claim deadline past the attempt timeout so a
	// slow-but-alive attempt is not reclaimed by a sibling worker.
	visibilityMargin = 30 * time.Second
)

// Worker drains the queue with a fixed pool of goroutines. Deliveries across
// the pool share a sends-per-minute rate cap so a burst of signups cannot
// trip provider throttling.
type Worker struct {
	queue   *Queue
	handler Handler
	cfg     config.QueueConfig
	limiter *rate.Limiter
	log     *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(q *Queue, handler Handler, cfg config.QueueConfig) *Worker {
	perSecond := rate.Limit(float64(cfg.SendsPerMinute) / 60)
	return &Worker{
		queue:   q,
		handler: handler,
		cfg:     cfg,
		limiter: rate.NewLimiter(perSecond, cfg.SendsPerMinute),
		log:     slog.With("component", "notification_worker"),
	}
}

// Start launches the worker pool. It returns immediately; use Stop for a
// drained shutdown.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.run(ctx)
		}()
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.observe(ctx)
	}()
	w.log.Info("worker started", "concurrency", w.cfg.Concurrency, "sends_per_minute", w.cfg.SendsPerMinute)
}

// Stop cancels the pool and waits for in-flight attempts to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.log.Info("worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	visibility := w.cfg.AttemptTimeout + visibilityMargin
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.queue.Dequeue(ctx, visibility)
		if err != nil {
			w.log.Warn("dequeue failed", "err", err)
			w.sleep(ctx, idlePoll)
			continue
		}
		if job == nil {
			w.sleep(ctx, idlePoll)
			continue
		}
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *Job) {
	attemptCtx, cancel := context.WithTimeout(ctx, w.cfg.AttemptTimeout)
	err := w.handler(attemptCtx, job.Payload)
	cancel()

	if err == nil {
		if ackErr := w.queue.Complete(ctx, job); ackErr != nil {
			w.log.Warn("completion ack failed", "job_id", job.ID, "err", ackErr)
		}
		metrics.JobCompleted(job.Payload.Channel)
		return
	}

	attempt := job.Attempts + 1
	if attempt >= w.cfg.MaxRetries {
		w.log.Error("job failed permanently",
			"job_id", job.ID, "channel", job.Payload.Channel, "attempts", attempt, "err", err)
		if failErr := w.queue.Fail(ctx, job, err); failErr != nil {
			w.log.Warn("parking failed job errored", "job_id", job.ID, "err", failErr)
		}
		metrics.JobFailed(job.Payload.Channel)
		return
	}

	delay := w.cfg.BackoffDelay << (attempt - 1)
	w.log.Warn("job attempt failed, rescheduling",
		"job_id", job.ID, "channel", job.Payload.Channel, "attempt", attempt, "delay", delay, "err", err)
	if retryErr := w.queue.Retry(ctx, job, delay, err); retryErr != nil {
		w.log.Warn("reschedule failed", "job_id", job.ID, "err", retryErr)
	}
	metrics.JobRetried()
}

// observe periodically publishes queue depth gauges.
func (w *Worker) observe(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m, err := w.queue.Metrics(ctx)
			if err != nil {
				continue
			}
			metrics.ObserveQueue(m)
		}
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
