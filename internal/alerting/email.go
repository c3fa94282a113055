package alerting

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"

	"feedwatch/internal/config"
)

// EmailNotifier sends alerts as plain-text mail over SMTP.
type EmailNotifier struct {
	cfg    config.EmailConfig
	send   func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
	logger zerolog.Logger
}

// NewEmailNotifier constructs the email channel.
func NewEmailNotifier(cfg config.EmailConfig, logger zerolog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		send:   smtp.SendMail,
		logger: logger.With().Str("component", "alert_email").Logger(),
	}
}

// Name identifies the channel in the audit trail.
func (n *EmailNotifier) Name() string {
	return "email"
}

// Send delivers the alert to all configured recipients.
func (n *EmailNotifier) Send(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(n.cfg.Recipients) == 0 {
		return fmt.Errorf("no email recipients configured")
	}

	from := n.cfg.FromAddress
	if from == "" {
		from = "feedwatch@localhost"
	}

	subject := fmt.Sprintf("Feed Alert: %s - %s", alert.FeedName, strings.ToUpper(alert.Verdict.String()))
	msg := buildMail(from, n.cfg.Recipients, subject, renderMessage(alert))

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	if err := n.send(addr, auth, from, n.cfg.Recipients, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	n.logger.Debug().Str("feed", alert.FeedName).Int("recipients", len(n.cfg.Recipients)).Msg("email alert delivered")
	return nil
}

func buildMail(from string, to []string, subject, body string) []byte {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("From: %s\r\n", from))
	builder.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	builder.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	builder.WriteString("MIME-Version: 1.0\r\n")
	builder.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	builder.WriteString("\r\n")
	builder.WriteString(body)
	return []byte(builder.String())
}

var _ Channel = (*EmailNotifier)(nil)
