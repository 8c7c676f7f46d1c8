package accounts

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"nrkgo.com/accounts/internal/ids"
	"nrkgo.com/accounts/internal/obs"
)

const defaultSessionTTL = 24 * time.Hour

// Service wires the accounts components around one store.
type Service struct {
	store     Store
	now       func() time.Time
	hasher    Hasher
	mailer    Mailer
	templates Templates
	log       *zap.Logger

	sessionTTL    time.Duration
	revokeOnReset bool

	Digests  *Digests
	Sessions *Sessions
	Identity *Identity
	Orgs     *Orgs
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithHasher overrides the password hasher.
func WithHasher(h Hasher) ServiceOption {
	return func(s *Service) error {
		if h == nil {
			return errors.New("accounts: nil hasher")
		}
		s.hasher = h
		return nil
	}
}

// WithMailer sets the outbound mail collaborator.
func WithMailer(m Mailer) ServiceOption {
	return func(s *Service) error {
		if m != nil {
			s.mailer = m
		}
		return nil
	}
}

// WithTemplates sets the email renderer.
func WithTemplates(t Templates) ServiceOption {
	return func(s *Service) error {
		if t != nil {
			s.templates = t
		}
		return nil
	}
}

// WithLogger overrides the logger.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) error {
		if l != nil {
			s.log = l
		}
		return nil
	}
}

// WithSessionTTL configures session lifetime.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
		return nil
	}
}

// WithRevokeSessionsOnReset controls whether a password reset signs the user
// out everywhere. Enabled by default.
func WithRevokeSessionsOnReset(on bool) ServiceOption {
	return func(s *Service) error {
		s.revokeOnReset = on
		return nil
	}
}

// New constructs Service with optional configuration.
func New(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("accounts: nil store")
	}
	svc := &Service{
		store:         store,
		now:           time.Now,
		hasher:        BcryptHasher{},
		mailer:        noopMailer{},
		templates:     plainTemplates{},
		sessionTTL:    defaultSessionTTL,
		revokeOnReset: true,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if svc.log == nil {
		svc.log = obs.Logger()
	}
	svc.Digests = &Digests{svc: svc}
	svc.Sessions = &Sessions{svc: svc}
	svc.Identity = &Identity{svc: svc}
	svc.Orgs = &Orgs{svc: svc}
	return svc, nil
}

// EnsureSystemRoles creates the protected global roles if they are missing.
func (s *Service) EnsureSystemRoles(ctx context.Context) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		for _, name := range []string{RoleSuperAdmin, RoleAdmin} {
			if _, err := s.ensureGlobalRole(ctx, tx, name, ""); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) ensureGlobalRole(ctx context.Context, tx Store, name, actor string) (*Role, error) {
	role, err := tx.Roles().FindGlobalByName(ctx, name)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	role = &Role{
		ID:        ids.New(),
		Name:      name,
		Protected: true,
	}
	role.stampCreated(actor, s.now().UTC())
	if err := tx.Roles().Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// sendEmail delivers msg without failing the caller; errors are logged and counted.
func (s *Service) sendEmail(ctx context.Context, template, to string, render func() (Message, error)) {
	msg, err := render()
	if err == nil {
		err = s.mailer.Send(ctx, to, msg.Subject, msg.HTML)
	}
	obs.EmailSent(template, err)
	if err != nil {
		s.log.Error("email dispatch failed",
			zap.String("template", template),
			zap.String("to", to),
			zap.Error(err),
		)
	}
}
