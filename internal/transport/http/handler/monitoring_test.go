package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-signup-api/internal/domain"
	"github.com/go-signup-api/internal/queue"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return queue.New(rdb)
}

func getQueueEnvelope(t *testing.T, h http.HandlerFunc) (int, QueueMetricsEnvelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h(w, req)
	var env QueueMetricsEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

func TestQueueMetrics_Disabled(t *testing.T) {
	h := NewMonitoringHandler(nil)
	code, env := getQueueEnvelope(t, h.Metrics)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "disabled", env.Status)
}

func TestQueueMetrics_Counts(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Enqueue(context.Background(), domain.NotificationPayload{
		Channel: domain.NotificationEmail, To: "a@b.com", Priority: domain.PriorityHigh,
	}))
	h := NewMonitoringHandler(q)

	code, env := getQueueEnvelope(t, h.Metrics)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "enabled", env.Status)
	assert.Equal(t, int64(1), env.Metrics.Waiting)
	assert.Equal(t, int64(1), env.Metrics.Total)
}

func TestQueueHealth_Healthy(t *testing.T) {
	h := NewMonitoringHandler(newTestQueue(t))
	code, env := getQueueEnvelope(t, h.Health)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", env.Status)
}

func TestQueueHealth_DegradedOnFailedPileup(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	for i := 0; i < failedThreshold; i++ {
		require.NoError(t, q.Enqueue(ctx, domain.NotificationPayload{
			Channel: domain.NotificationSMS, To: "+1555", Priority: domain.PriorityHigh,
		}))
		job, err := q.Dequeue(ctx, time.Minute)
		require.NoError(t, err)
		require.NoError(t, q.Fail(ctx, job, errors.New("down")))
	}
	h := NewMonitoringHandler(q)

	_, env := getQueueEnvelope(t, h.Health)
	assert.Equal(t, "degraded", env.Status)
}

func TestQueueHealth_DegradedOnBacklog(t *testing.T) {
	q := newTestQueue(t)
	payloads := make([]domain.NotificationPayload, waitingThreshold)
	for i := range payloads {
		payloads[i] = domain.NotificationPayload{
			Channel: domain.NotificationEmail, To: "a@b.com", Priority: domain.PriorityLow,
		}
	}
	require.NoError(t, q.EnqueueBulk(context.Background(), payloads))
	h := NewMonitoringHandler(q)

	_, env := getQueueEnvelope(t, h.Health)
	assert.Equal(t, "degraded", env.Status)
}
