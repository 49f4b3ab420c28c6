package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-signup-api/internal/domain"
)

// Sink is the delivery entry point for fire-and-forget dispatches. The
// variant (synchronous or queued) is chosen once at startup; call sites never
// branch on a nullable queue.
type Sink interface {
	Dispatch(ctx context.Context, payloads ...domain.NotificationPayload) error
}

// syncSendTimeout bounds a detached synchronous dispatch.
const syncSendTimeout = 60 * time.Second

type syncSink struct {
	dispatcher Dispatcher
}

// NewSyncSink sends payloads in a detached goroutine through the synchronous
// facade. Used when the job queue is disabled.
func NewSyncSink(d Dispatcher) Sink {
	return &syncSink{dispatcher: d}
}

func (s *syncSink) Dispatch(_ context.Context, payloads ...domain.NotificationPayload) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), syncSendTimeout)
		defer cancel()
		for _, res := range s.dispatcher.SendBulk(ctx, payloads) {
			if !res.Success {
				slog.Error("background notification failed", "channel", res.Channel, "err", res.Err)
			}
		}
	}()
	return nil
}

// enqueuer is the slice of the job queue the sink needs.
type enqueuer interface {
	EnqueueBulk(ctx context.Context, payloads []domain.NotificationPayload) error
}

type queueSink struct {
	queue enqueuer
}

// NewQueueSink hands payloads to the job queue for at-least-once delivery
// with retry and backoff.
func NewQueueSink(q enqueuer) Sink {
	return &queueSink{queue: q}
}

func (s *queueSink) Dispatch(ctx context.Context, payloads ...domain.NotificationPayload) error {
	return s.queue.EnqueueBulk(ctx, payloads)
}
