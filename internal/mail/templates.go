package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"nrkgo.com/accounts/internal/accounts"
)

var _ accounts.Templates = (*Templates)(nil)

const layout = `<!doctype html>
<html><body style="font-family:sans-serif;color:#222">
{{block "content" .}}{{end}}
<p style="color:#888;font-size:12px">{{.Product}}</p>
</body></html>`

const verificationHTML = `{{define "content"}}
<p>Hi {{.Name}},</p>
<p>Confirm your email address to finish setting up your {{.Product}} account.</p>
<p><a href="{{.Link}}">Verify email</a></p>
<p>The link is valid for 24 hours.</p>
{{end}}`

const resetHTML = `{{define "content"}}
<p>Hi {{.Name}},</p>
<p>We received a request to reset your password.</p>
<p><a href="{{.Link}}">Choose a new password</a></p>
<p>The link expires in {{.Validity}}. If you did not ask for this, ignore this email.</p>
{{end}}`

const inviteHTML = `{{define "content"}}
<p>Hello,</p>
<p>{{.Inviter}} invited you to join <strong>{{.Org}}</strong> on {{.Product}}.</p>
<p><a href="{{.Link}}">Accept invitation</a></p>
{{end}}`

type view struct {
	Product  string
	Name     string
	Link     string
	Validity string
	Inviter  string
	Org      string
}

// Templates renders the accounts emails with html/template. Links are built
// from BaseURL and the token.
type Templates struct {
	BaseURL string
	Product string

	verification *template.Template
	reset        *template.Template
	invite       *template.Template
}

// NewTemplates parses the email templates.
func NewTemplates(baseURL, product string) (*Templates, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("links base url: %w", err)
	}
	if product == "" {
		product = "Accounts"
	}
	t := &Templates{BaseURL: strings.TrimRight(baseURL, "/"), Product: product}
	var err error
	if t.verification, err = parse("verification", verificationHTML); err != nil {
		return nil, err
	}
	if t.reset, err = parse("reset", resetHTML); err != nil {
		return nil, err
	}
	if t.invite, err = parse("invite", inviteHTML); err != nil {
		return nil, err
	}
	return t, nil
}

func parse(name, content string) (*template.Template, error) {
	tpl, err := template.New(name).Parse(layout)
	if err != nil {
		return nil, err
	}
	return tpl.Parse(content)
}

func (t *Templates) link(path, token string) string {
	return t.BaseURL + path + "?token=" + url.QueryEscape(token)
}

func render(tpl *template.Template, subject string, v view) (accounts.Message, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, v); err != nil {
		return accounts.Message{}, fmt.Errorf("render %s: %w", tpl.Name(), err)
	}
	return accounts.Message{Subject: subject, HTML: buf.String()}, nil
}

func displayName(u *accounts.User) string {
	if u == nil {
		return "there"
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Email
}

func (t *Templates) Verification(u *accounts.User, token string) (accounts.Message, error) {
	return render(t.verification, "Verify your email", view{
		Product: t.Product,
		Name:    displayName(u),
		Link:    t.link("/verify-email", token),
	})
}

func (t *Templates) PasswordReset(u *accounts.User, token string, ttl time.Duration) (accounts.Message, error) {
	return render(t.reset, "Reset your password", view{
		Product:  t.Product,
		Name:     displayName(u),
		Link:     t.link("/reset-password", token),
		Validity: humanize(ttl),
	})
}

func (t *Templates) Invitation(inviter *accounts.User, org *accounts.Organization, _ string, token string) (accounts.Message, error) {
	orgName := ""
	if org != nil {
		orgName = org.Name
	}
	inviterName := displayName(inviter)
	if inviter != nil && inviter.LastName != "" && inviter.FirstName != "" {
		inviterName = inviter.FirstName + " " + inviter.LastName
	}
	return render(t.invite, fmt.Sprintf("You're invited to join %s", orgName), view{
		Product: t.Product,
		Inviter: inviterName,
		Org:     orgName,
		Link:    t.link("/invitations/accept", token),
	})
}

func humanize(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		n := int(d / (24 * time.Hour))
		if n == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", n)
	case d >= time.Hour && d%time.Hour == 0:
		n := int(d / time.Hour)
		if n == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", n)
	default:
		return d.String()
	}
}
