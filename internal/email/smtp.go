package email

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/gomail.v2"

	"ms-payment-verification/internal/config"
	"ms-payment-verification/internal/logger"
)

// Dialer is satisfied by *gomail.Dialer.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPMailer struct {
	dialer Dialer
	from   string
	logger *logger.Logger
}

func NewSMTPMailer(cfg config.EmailConfig, log *logger.Logger) *SMTPMailer {
	return NewMailerWithDialer(gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword), cfg.From, log)
}

func NewMailerWithDialer(d Dialer, from string, log *logger.Logger) *SMTPMailer {
	return &SMTPMailer{dialer: d, from: from, logger: log}
}

func (m *SMTPMailer) Send(ctx context.Context, d Delivery) error {
	if d.To == "" {
		return errors.New("email: missing recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", d.To)
	msg.SetHeader("Subject", d.Subject)
	msg.SetBody("text/html", d.Body)
	for _, a := range d.Attachments {
		data := a.Data
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		msg.Attach(a.FileName,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {contentType}}),
		)
	}

	if err := m.dialer.DialAndSend(msg); err != nil {
		m.logger.Error("EMAIL", fmt.Sprintf("Failed to send %q to %s: %v", d.Subject, d.To, err))
		return fmt.Errorf("send email to %s: %w", d.To, err)
	}
	m.logger.Info("EMAIL", fmt.Sprintf("Sent %q to %s with %d attachment(s)", d.Subject, d.To, len(d.Attachments)))
	return nil
}
