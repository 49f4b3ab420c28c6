package notification

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/go-signup-api/internal/domain"
)

// EmailMessage is the provider-level shape of an outgoing email.
type EmailMessage struct {
	To          string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// Attachment is a resolved (downloaded) email attachment.
type Attachment struct {
	Filename string
	Content  []byte
}

// EmailProvider delivers email payloads.
type EmailProvider interface {
	SendEmail(ctx context.Context, msg EmailMessage) (messageID string, err error)
}

// SMSProvider delivers SMS payloads.
type SMSProvider interface {
	SendSMS(ctx context.Context, to, message string) (messageID string, err error)
}

// attachmentFetcher resolves an object-store key into attachment bytes.
type attachmentFetcher interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

// Dispatcher is the channel-polymorphic synchronous send facade. Provider
// failures are normalized into a failed NotificationResult, never escalated,
// so one channel's outage cannot block another in a bulk send.
type Dispatcher interface {
	Send(ctx context.Context, p domain.NotificationPayload) domain.NotificationResult
	SendBulk(ctx context.Context, payloads []domain.NotificationPayload) []domain.NotificationResult
}

type dispatcher struct {
	email       EmailProvider
	sms         SMSProvider
	attachments attachmentFetcher // may be nil when no object store is configured
}

// DispatcherDeps holds the channel providers for NewDispatcher.
type DispatcherDeps struct {
	Email       EmailProvider
	SMS         SMSProvider
	Attachments attachmentFetcher
}

func NewDispatcher(deps DispatcherDeps) Dispatcher {
	return &dispatcher{email: deps.Email, sms: deps.SMS, attachments: deps.Attachments}
}

func (d *dispatcher) Send(ctx context.Context, p domain.NotificationPayload) domain.NotificationResult {
	var (
		messageID string
		err       error
	)
	switch p.Channel {
	case domain.NotificationEmail:
		messageID, err = d.sendEmail(ctx, p)
	case domain.NotificationSMS:
		messageID, err = d.sendSMS(ctx, p)
	default:
		err = fmt.Errorf("unsupported notification channel %q: %w", p.Channel, domain.ErrBadRequest)
	}

	if err != nil {
		slog.Error("notification sending failed", "channel", p.Channel, "err", err)
		return domain.NotificationResult{
			Success:   false,
			Channel:   p.Channel,
			Err:       err.Error(),
			Timestamp: time.Now().UTC(),
		}
	}
	return domain.NotificationResult{
		Success:   true,
		Channel:   p.Channel,
		MessageID: messageID,
		Timestamp: time.Now().UTC(),
	}
}

// SendBulk fans out to every payload and collects all results; a failing
// sibling never short-circuits the rest.
func (d *dispatcher) SendBulk(ctx context.Context, payloads []domain.NotificationPayload) []domain.NotificationResult {
	results := make([]domain.NotificationResult, len(payloads))
	var wg sync.WaitGroup
	for i := range payloads {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.Send(ctx, payloads[i])
		}(i)
	}
	wg.Wait()
	return results
}

func (d *dispatcher) sendEmail(ctx context.Context, p domain.NotificationPayload) (string, error) {
	msg := EmailMessage{
		To:      p.To,
		Subject: p.Subject,
		HTML:    p.HTML,
		Text:    p.Message,
	}
	if msg.Subject == "" {
		msg.Subject = "Notification"
	}
	for _, key := range p.AttachmentKeys {
		att, err := d.fetchAttachment(ctx, key)
		if err != nil {
			return "", err
		}
		msg.Attachments = append(msg.Attachments, att)
	}
	return d.email.SendEmail(ctx, msg)
}

func (d *dispatcher) sendSMS(ctx context.Context, p domain.NotificationPayload) (string, error) {
	if d.sms == nil {
		return "", fmt.Errorf("no SMS provider configured: %w", domain.ErrDeliveryFailed)
	}
	return d.sms.SendSMS(ctx, p.To, p.Message)
}

func (d *dispatcher) fetchAttachment(ctx context.Context, key string) (Attachment, error) {
	if d.attachments == nil {
		return Attachment{}, fmt.Errorf("attachment %s requested but no object store configured", key)
	}
	rc, err := d.attachments.Download(ctx, key)
	if err != nil {
		return Attachment{}, fmt.Errorf("download attachment %s: %w", key, err)
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return Attachment{}, fmt.Errorf("read attachment %s: %w", key, err)
	}
	return Attachment{Filename: key, Content: content}, nil
}
