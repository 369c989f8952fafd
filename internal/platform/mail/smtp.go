package mail

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
)

// Message is a single outbound mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers messages to a single recipient.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSenderDeps configures the SMTP relay connection.
type SMTPSenderDeps struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers mail through a plain SMTP relay with optional AUTH.
type SMTPSender struct {
	addr string
	host string
	auth smtp.Auth
	from string
}

// NewSMTPSender validates deps and constructs an SMTPSender.
func NewSMTPSender(deps SMTPSenderDeps) (*SMTPSender, error) {
	host := strings.TrimSpace(deps.Host)
	if host == "" {
		return nil, errors.New("smtp sender requires a host")
	}
	if deps.Port <= 0 {
		return nil, errors.New("smtp sender requires a positive port")
	}
	from := strings.TrimSpace(deps.From)
	if from == "" {
		return nil, errors.New("smtp sender requires a from address")
	}

	var auth smtp.Auth
	if user := strings.TrimSpace(deps.Username); user != "" {
		auth = smtp.PlainAuth("", user, deps.Password, host)
	}

	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", host, deps.Port),
		host: host,
		auth: auth,
		from: from,
	}, nil
}

// Send delivers the message, honouring context cancellation while the SMTP
// exchange is in flight.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if s == nil {
		return errors.New("smtp sender not initialised")
	}
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return errors.New("smtp send: recipient is required")
	}

	payload := buildPayload(s.from, to, msg.Subject, msg.Body)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(s.addr, s.auth, s.from, []string{to}, payload)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	}
}

func buildPayload(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func sanitizeHeader(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	return strings.TrimSpace(value)
}
