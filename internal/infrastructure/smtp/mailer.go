package smtp

import (
	"bytes"
	"context"
	"fmt"

	mail "github.com/go-mail/mail"
	"github.com/go-signup-api/internal/application/notification"
	"github.com/go-signup-api/internal/config"
	"github.com/go-signup-api/internal/pkg/id"
)

// Mailer delivers multipart email via SMTP.
type Mailer struct {
	dialer *mail.Dialer
	from   string
}

func NewMailer(cfg *config.Config) *Mailer {
	d := mail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	if cfg.SMTPUsername == "" {
		// Local dev relays (MailHog, LocalStack SES) reject AUTH.
		d.Auth = nil
	}
	return &Mailer{dialer: d, from: cfg.SMTPFrom}
}

// SendEmail builds a text+HTML multipart message with any resolved
// attachments and sends it. The returned message ID is generated locally;
// SMTP has no delivery receipt.
func (m *Mailer) SendEmail(ctx context.Context, msg notification.EmailMessage) (string, error) {
	em := mail.NewMessage()
	em.SetHeader("From", m.from)
	em.SetHeader("To", msg.To)
	em.SetHeader("Subject", msg.Subject)
	em.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		em.AddAlternative("text/html", msg.HTML)
	}
	for _, att := range msg.Attachments {
		em.AttachReader(att.Filename, bytes.NewReader(att.Content))
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := m.dialer.DialAndSend(em); err != nil {
		return "", fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return id.New(), nil
}
