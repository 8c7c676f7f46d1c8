package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"nrkgo.com/accounts/internal/accounts"
)

func TestSMTPSenderBuildsHTMLMessage(t *testing.T) {
	s, err := NewSMTPSender("smtp.example.com", 587, "user", "secret", "noreply@example.com")
	if err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		if a == nil {
			t.Fatal("expected PLAIN auth")
		}
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	if err := s.Send(context.Background(), "ada@example.com", "Hello", "<p>hi</p>"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAddr != "smtp.example.com:587" || len(gotTo) != 1 || gotTo[0] != "ada@example.com" {
		t.Fatalf("unexpected envelope: %s %v", gotAddr, gotTo)
	}
	for _, want := range []string{"From: noreply@example.com\r\n", "Content-Type: text/html", "\r\n\r\n<p>hi</p>"} {
		if !strings.Contains(gotMsg, want) {
			t.Fatalf("message missing %q:\n%s", want, gotMsg)
		}
	}

	if err := s.Send(context.Background(), "x@example.com\r\nBcc: evil@example.com", "s", "b"); err == nil {
		t.Fatal("expected header injection to be rejected")
	}
}

func TestSMTPSenderValidation(t *testing.T) {
	if _, err := NewSMTPSender("", 25, "", "", "a@example.com"); err == nil {
		t.Fatal("expected missing host error")
	}
	if _, err := NewSMTPSender("h", 0, "", "", "a@example.com"); err == nil {
		t.Fatal("expected missing port error")
	}
	if _, err := NewSMTPSender("h", 25, "", "", ""); err == nil {
		t.Fatal("expected missing from error")
	}
}

type recorder struct {
	mu    sync.Mutex
	to    []string
	fail  bool
	block chan struct{}
}

func (r *recorder) Send(_ context.Context, to, _, _ string) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("relay refused")
	}
	r.to = append(r.to, to)
	return nil
}

func TestDispatcherDeliversAndDrains(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, 3, 10, zap.NewNop())
	for i := 0; i < 5; i++ {
		if err := d.Send(context.Background(), "user@example.com", "s", "b"); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(rec.to) != 5 {
		t.Fatalf("expected 5 deliveries, got %d", len(rec.to))
	}
	if err := d.Send(context.Background(), "late@example.com", "s", "b"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	d := NewDispatcher(rec, 1, 1, zap.NewNop())

	// One job is held by the blocked worker, one fills the queue.
	var sent int
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		if err = d.Send(context.Background(), "u@example.com", "s", "b"); err == nil {
			sent++
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull after %d sends, got %v", sent, err)
	}
	close(rec.block)
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestDispatcherLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	d := NewDispatcher(&recorder{fail: true}, 1, 1, zap.New(core))
	if err := d.Send(context.Background(), "u@example.com", "s", "b"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if logs.FilterMessage("email delivery failed").Len() != 1 {
		t.Fatalf("expected one failure log, got %v", logs.All())
	}
}

func TestTemplates(t *testing.T) {
	tpl, err := NewTemplates("https://app.example.com/", "Acme")
	if err != nil {
		t.Fatalf("NewTemplates: %v", err)
	}
	u := &accounts.User{FirstName: "<Ada>", Email: "ada@example.com"}

	msg, err := tpl.Verification(u, "tok+/=")
	if err != nil {
		t.Fatalf("Verification: %v", err)
	}
	if !strings.Contains(msg.HTML, "https://app.example.com/verify-email?token=tok%2B%2F%3D") {
		t.Fatalf("verification link missing:\n%s", msg.HTML)
	}
	if strings.Contains(msg.HTML, "<Ada>") || !strings.Contains(msg.HTML, "&lt;Ada&gt;") {
		t.Fatalf("name not escaped:\n%s", msg.HTML)
	}

	msg, err = tpl.PasswordReset(u, "r1", time.Hour)
	if err != nil {
		t.Fatalf("PasswordReset: %v", err)
	}
	if !strings.Contains(msg.HTML, "1 hour") || !strings.Contains(msg.HTML, "/reset-password?token=r1") {
		t.Fatalf("unexpected reset body:\n%s", msg.HTML)
	}

	inviter := &accounts.User{FirstName: "Grace", LastName: "Hopper"}
	msg, err = tpl.Invitation(inviter, &accounts.Organization{Name: "Navy"}, "x@example.com", "i1")
	if err != nil {
		t.Fatalf("Invitation: %v", err)
	}
	if msg.Subject != "You're invited to join Navy" || !strings.Contains(msg.HTML, "Grace Hopper") {
		t.Fatalf("unexpected invitation: %q\n%s", msg.Subject, msg.HTML)
	}
}

func TestHumanize(t *testing.T) {
	cases := map[time.Duration]string{
		time.Hour:          "1 hour",
		3 * time.Hour:      "3 hours",
		24 * time.Hour:     "1 day",
		7 * 24 * time.Hour: "7 days",
		90 * time.Minute:   "1h30m0s",
	}
	for in, want := range cases {
		if got := humanize(in); got != want {
			t.Fatalf("humanize(%v) = %q, want %q", in, got, want)
		}
	}
}
