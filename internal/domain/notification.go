package domain

import "time"

// NotificationChannel selects the delivery medium for a payload.
type NotificationChannel string

const (
	NotificationEmail NotificationChannel = "email"
	NotificationSMS   NotificationChannel = "sms"
)

// NotificationPriority is a coarse job-priority tier. Lower numeric values
// are dispatched first by the queue.
type NotificationPriority string

const (
	PriorityCritical NotificationPriority = "critical"
	PriorityHigh     NotificationPriority = "high"
	PriorityMedium   NotificationPriority = "medium"
	PriorityLow      NotificationPriority = "low"
)

// Rank maps the tier onto the queue's ascending numeric priority.
// Unknown tiers rank as medium.
func (p NotificationPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 1
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 3
	case PriorityLow:
		return 4
	default:
		return 3
	}
}

// NotificationPayload is everything a provider needs to deliver one message.
type NotificationPayload struct {
	Channel        NotificationChannel  `json:"channel"`
	To             string               `json:"to"`
	Subject        string               `json:"subject,omitempty"`
	Message        string               `json:"message,omitempty"`
	HTML           string               `json:"html,omitempty"`
	AttachmentKeys []string             `json:"attachment_keys,omitempty"` // object-store keys resolved at send time
	Priority       NotificationPriority `json:"priority,omitempty"`
	Metadata       map[string]string    `json:"metadata,omitempty"`
}

// NotificationResult is the normalized outcome of a single send attempt.
// Provider failures are reported here, never escalated as errors, so one
// channel's outage cannot block a sibling in a bulk send.
type NotificationResult struct {
	Success   bool                `json:"success"`
	Channel   NotificationChannel `json:"channel"`
	MessageID string              `json:"message_id,omitempty"`
	Err       string              `json:"error,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// QueueMetrics are the counts an external health check uses to classify the
// notification pipeline as healthy or degraded.
type QueueMetrics struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
	Total     int64 `json:"total"`
}
