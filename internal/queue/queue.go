package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-signup-api/internal/domain"
	"github.com/go-signup-api/internal/pkg/id"
	"github.com/redis/go-redis/v9"
)

// Key layout (all under the queue prefix):
//
//	pending  ZSET  jobID scored by priority tier then enqueue time
//	delayed  ZSET  jobID scored by ready-at (backoff)
//	active   ZSET  jobID scored by visibility deadline
//	failed   ZSET  jobID scored by failure time (parked for inspection)
//	done     ZSET  jobID scored by completion time (pruned past retention)
//	jobs     HASH  jobID -> JSON body
const (
	defaultPrefix = "notifq"

	// priorityStride keeps priority tiers strictly ordered ahead of the
	// millisecond enqueue timestamp in a pending score.
	priorityStride = 1e13

	completedRetention = time.Hour
)

// Job is one queued notification delivery with its retry bookkeeping.
type Job struct {
	ID         string                     `json:"id"`
	Payload    domain.NotificationPayload `json:"payload"`
	Attempts   int                        `json:"attempts"`
	EnqueuedAt int64                      `json:"enqueued_at"` // epoch ms
	LastError  string                     `json:"last_error,omitempty"`
}

// Queue is a Redis-backed priority job queue with at-least-once delivery:
// a job leaves the in-flight view only after its handler succeeded, and
// in-flight jobs whose visibility deadline lapsed are reclaimed for another
// attempt.
type Queue struct {
	rdb    *redis.Client
	prefix string
}

func New(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb, prefix: defaultPrefix}
}

func (q *Queue) key(name string) string { return q.prefix + ":" + name }

func pendingScore(p domain.NotificationPriority, enqueuedAt int64) float64 {
	return float64(p.Rank())*priorityStride + float64(enqueuedAt)
}

// Enqueue adds one job to the pending set.
func (q *Queue) Enqueue(ctx context.Context, payload domain.NotificationPayload) error {
	return q.EnqueueBulk(ctx, []domain.NotificationPayload{payload})
}

// EnqueueBulk adds all payloads in a single transaction.
func (q *Queue) EnqueueBulk(ctx context.Context, payloads []domain.NotificationPayload) error {
	if len(payloads) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range payloads {
			job := Job{ID: id.New(), Payload: p, EnqueuedAt: now}
			body, err := json.Marshal(job)
			if err != nil {
				return err
			}
			pipe.HSet(ctx, q.key("jobs"), job.ID, body)
			pipe.ZAdd(ctx, q.key("pending"), redis.Z{
				Score:  pendingScore(p.Priority, now),
				Member: job.ID,
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// popScript atomically moves the best pending job into the active set with a
// visibility deadline, so a crash between pop and claim cannot drop a job.
var popScript = redis.NewScript(`
local member = redis.call('ZPOPMIN', KEYS[1])
if #member == 0 then
  return false
end
redis.call('ZADD', KEYS[2], ARGV[1], member[1])
return member[1]
`)

// Dequeue promotes due delayed jobs and reclaims expired in-flight ones, then
// claims the highest-priority pending job. Returns nil when the queue is idle.
func (q *Queue) Dequeue(ctx context.Context, visibility time.Duration) (*Job, error) {
	now := time.Now().UnixMilli()
	if err := q.promote(ctx, q.key("delayed"), now); err != nil {
		return nil, err
	}
	if err := q.promote(ctx, q.key("active"), now); err != nil {
		return nil, err
	}

	deadline := now + visibility.Milliseconds()
	res, err := popScript.Run(ctx, q.rdb,
		[]string{q.key("pending"), q.key("active")},
		deadline,
	).Result()
	if errors.Is(err, redis.Nil) || res == false {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	jobID, ok := res.(string)
	if !ok {
		return nil, nil
	}
	body, err := q.rdb.HGet(ctx, q.key("jobs"), jobID).Result()
	if errors.Is(err, redis.Nil) {
		// Body already pruned; drop the orphaned claim.
		q.rdb.ZRem(ctx, q.key("active"), jobID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	var job Job
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return nil, fmt.Errorf("corrupt job %s: %v", jobID, err)
	}
	return &job, nil
}

// promote moves every member of src whose score is due back into pending.
// Members are scored FIFO at their original priority.
func (q *Queue) promote(ctx context.Context, src string, nowMs int64) error {
	due, err := q.rdb.ZRangeByScore(ctx, src, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", nowMs),
	}).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if len(due) == 0 {
		return nil
	}
	bodies, err := q.rdb.HMGet(ctx, q.key("jobs"), due...).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, jobID := range due {
			raw, ok := bodies[i].(string)
			if !ok {
				pipe.ZRem(ctx, src, jobID)
				continue
			}
			var job Job
			if err := json.Unmarshal([]byte(raw), &job); err != nil {
				pipe.ZRem(ctx, src, jobID)
				continue
			}
			pipe.ZRem(ctx, src, jobID)
			pipe.ZAdd(ctx, q.key("pending"), redis.Z{
				Score:  pendingScore(job.Payload.Priority, nowMs),
				Member: jobID,
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Complete acknowledges a finished job, retaining it briefly for metrics and
// pruning anything past the retention horizon.
func (q *Queue) Complete(ctx context.Context, job *Job) error {
	now := time.Now().UnixMilli()
	horizon := now - completedRetention.Milliseconds()

	expired, err := q.rdb.ZRangeByScore(ctx, q.key("done"), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", horizon),
	}).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.key("active"), job.ID)
		pipe.ZAdd(ctx, q.key("done"), redis.Z{Score: float64(now), Member: job.ID})
		if len(expired) > 0 {
			pipe.ZRem(ctx, q.key("done"), expired)
			pipe.HDel(ctx, q.key("jobs"), expired...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Retry reschedules a failed attempt after the given backoff delay.
func (q *Queue) Retry(ctx context.Context, job *Job, delay time.Duration, attemptErr error) error {
	job.Attempts++
	job.LastError = attemptErr.Error()
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	readyAt := time.Now().Add(delay).UnixMilli()
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.key("jobs"), job.ID, body)
		pipe.ZRem(ctx, q.key("active"), job.ID)
		pipe.ZAdd(ctx, q.key("delayed"), redis.Z{Score: float64(readyAt), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Fail parks a job whose retries are exhausted in the failed set, where it
// stays visible to metrics and manual inspection.
func (q *Queue) Fail(ctx context.Context, job *Job, attemptErr error) error {
	job.Attempts++
	job.LastError = attemptErr.Error()
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.key("jobs"), job.ID, body)
		pipe.ZRem(ctx, q.key("active"), job.ID)
		pipe.ZAdd(ctx, q.key("failed"), redis.Z{Score: float64(time.Now().UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Metrics returns the queue depth counts in one round trip.
func (q *Queue) Metrics(ctx context.Context) (domain.QueueMetrics, error) {
	var waiting, active, done, failed, delayed *redis.IntCmd
	_, err := q.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		waiting = pipe.ZCard(ctx, q.key("pending"))
		active = pipe.ZCard(ctx, q.key("active"))
		done = pipe.ZCard(ctx, q.key("done"))
		failed = pipe.ZCard(ctx, q.key("failed"))
		delayed = pipe.ZCard(ctx, q.key("delayed"))
		return nil
	})
	if err != nil {
		return domain.QueueMetrics{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	m := domain.QueueMetrics{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Completed: done.Val(),
		Failed:    failed.Val(),
		Delayed:   delayed.Val(),
	}
	m.Total = m.Waiting + m.Active + m.Delayed
	return m, nil
}
