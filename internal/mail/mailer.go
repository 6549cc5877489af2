// Package mail is the delivery boundary for outbox workers. The transport is
// synchronous from the caller's perspective; failures come back as errors and
// are recorded on the outbox row, never retried here.
package mail

import (
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/config"
)

// Mailer sends a single message.
type Mailer interface {
	Send(to string, cc []string, subject, body string) error
}

// New returns an SMTP mailer when a host is configured, otherwise a log-only
// transport so the rest of the pipeline stays exercisable in development.
func New(cfg config.MailConfig, logger *zap.Logger) Mailer {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		logger.Warn("SMTP_HOST not provided; using log-only mail transport")
		return &logMailer{logger: logger, from: cfg.From}
	}
	return &smtpMailer{cfg: cfg}
}

type smtpMailer struct {
	cfg config.MailConfig
}

func (m *smtpMailer) Send(to string, cc []string, subject, body string) error {
	addr := m.cfg.SMTPHost + ":" + m.cfg.SMTPPort

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.SMTPHost)
	}

	recipients := append([]string{to}, cc...)
	msg := buildMessage(m.cfg.From, to, cc, subject, body)
	if err := smtp.SendMail(addr, auth, m.cfg.From, recipients, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func buildMessage(from, to string, cc []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	if len(cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\r\n", strings.Join(cc, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

type logMailer struct {
	logger *zap.Logger
	from   string
}

func (m *logMailer) Send(to string, cc []string, subject, body string) error {
	m.logger.Info("mail (log transport)",
		zap.String("from", m.from),
		zap.String("to", to),
		zap.Strings("cc", cc),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)))
	return nil
}
