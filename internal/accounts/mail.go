package accounts

import (
	"context"
	"fmt"
	"html"
	"time"
)

// Mailer delivers an HTML email. Implementations may queue and return early.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Message is a rendered email.
type Message struct {
	Subject string
	HTML    string
}

// Templates renders the emails sent by the accounts flows. Links are built
// by the implementation from the token it is handed.
type Templates interface {
	Verification(u *User, token string) (Message, error)
	PasswordReset(u *User, token string, ttl time.Duration) (Message, error)
	Invitation(inviter *User, org *Organization, email, token string) (Message, error)
}

type noopMailer struct{}

func (noopMailer) Send(context.Context, string, string, string) error { return nil }

// plainTemplates is the fallback renderer used when none is configured.
type plainTemplates struct{}

func (plainTemplates) Verification(u *User, token string) (Message, error) {
	return Message{
		Subject: "Verify your email",
		HTML:    fmt.Sprintf("<p>Hi %s, your verification code is <b>%s</b>.</p>", html.EscapeString(u.FirstName), token),
	}, nil
}

func (plainTemplates) PasswordReset(u *User, token string, ttl time.Duration) (Message, error) {
	return Message{
		Subject: "Reset your password",
		HTML:    fmt.Sprintf("<p>Hi %s, your reset code is <b>%s</b>. It expires in %s.</p>", html.EscapeString(u.FirstName), token, ttl),
	}, nil
}

func (plainTemplates) Invitation(inviter *User, org *Organization, email, token string) (Message, error) {
	return Message{
		Subject: "Invitation to join " + org.Name,
		HTML:    fmt.Sprintf("<p>%s invited you to %s. Your invitation code is <b>%s</b>.</p>", html.EscapeString(inviter.FirstName), html.EscapeString(org.Name), token),
	}, nil
}
