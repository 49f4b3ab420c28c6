package handler

import (
	"net/http"

	"github.com/go-signup-api/internal/domain"
	"github.com/go-signup-api/internal/queue"
)

// Degradation thresholds for the queue health probe.
const (
	failedThreshold  = 100
	waitingThreshold = 1000
)

// MonitoringHandler exposes the notification queue's depth and health.
type MonitoringHandler struct {
	queue *queue.Queue
}

func NewMonitoringHandler(q *queue.Queue) *MonitoringHandler {
	return &MonitoringHandler{queue: q}
}

// QueueMetricsEnvelope wraps the queue depth counts.
type QueueMetricsEnvelope struct {
	Status  string              `json:"status"`
	Metrics domain.QueueMetrics `json:"metrics"`
}

func (h *MonitoringHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		writeJSON(w, http.StatusOK, QueueMetricsEnvelope{Status: "disabled"})
		return
	}
	m, err := h.queue.Metrics(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, QueueMetricsEnvelope{Status: "enabled", Metrics: m})
}

// Health reports degraded when failed jobs pile up or the backlog grows past
// the waiting threshold.
func (h *MonitoringHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		writeJSON(w, http.StatusOK, QueueMetricsEnvelope{Status: "disabled"})
		return
	}
	m, err := h.queue.Metrics(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	status := "healthy"
	if m.Failed >= failedThreshold || m.Waiting >= waitingThreshold {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, QueueMetricsEnvelope{Status: status, Metrics: m})
}
