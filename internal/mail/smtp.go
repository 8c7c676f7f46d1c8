// Package mail delivers the accounts emails: SMTP or log senders, an
// asynchronous dispatcher in front of them, and the HTML templates.
package mail

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"nrkgo.com/accounts/internal/accounts"
)

var (
	_ accounts.Mailer = (*SMTPSender)(nil)
	_ accounts.Mailer = (*LogSender)(nil)
)

// SMTPSender sends HTML mail through an SMTP relay with PLAIN auth.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender validates the relay settings.
func NewSMTPSender(host string, port int, username, password, from string) (*SMTPSender, error) {
	s := &SMTPSender{Host: host, Port: port, Username: username, Password: password, From: from, sendMail: smtp.SendMail}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the relay settings.
func (s *SMTPSender) Validate() error {
	if s.Host == "" {
		return errors.New("smtp host is required")
	}
	if s.Port <= 0 {
		return errors.New("smtp port is required")
	}
	if s.From == "" {
		return errors.New("from email is required")
	}
	return nil
}

// Send delivers one message. The relay call itself is not cancellable; ctx is
// only checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("invalid recipient %q", to)
	}
	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	send := s.sendMail
	if send == nil {
		send = smtp.SendMail
	}
	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	if err := send(addr, auth, s.From, []string{to}, buildMessage(s.From, to, subject, htmlBody)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}

// LogSender writes mail to the logger instead of sending it. Meant for development.
type LogSender struct {
	log *zap.Logger
}

// NewLogSender returns a LogSender writing to l.
func NewLogSender(l *zap.Logger) *LogSender {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogSender{log: l}
}

func (s *LogSender) Send(_ context.Context, to, subject, htmlBody string) error {
	s.log.Info("email",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", htmlBody),
	)
	return nil
}
